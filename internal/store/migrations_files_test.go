package store

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippedMigrationsAreListed(t *testing.T) {
	migrations, err := ListMigrations(filepath.Join("..", "..", "db", "migrations"))
	require.NoError(t, err)

	versions := make([]string, 0, len(migrations))
	for _, m := range migrations {
		versions = append(versions, m.Version)
		assert.FileExists(t, m.UpPath)
		assert.FileExists(t, m.DownPath)
	}
	assert.Equal(t, []string{"0001_snapshots", "0002_comparisons"}, versions)
}

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}
	return dir
}

func TestListMigrationsRejectsBadLayouts(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "missing down file",
			files: map[string]string{"0001_snapshots.up.sql": "SELECT 1;"},
			want:  "has no 0001_snapshots.down.sql",
		},
		{
			name: "duplicate number",
			files: map[string]string{
				"0001_snapshots.up.sql": "SELECT 1;", "0001_snapshots.down.sql": "SELECT 1;",
				"0001_other.up.sql": "SELECT 1;", "0001_other.down.sql": "SELECT 1;",
			},
			want: "migration number 0001 used by both",
		},
		{
			name:  "unexpected name",
			files: map[string]string{"Snapshots.up.sql": "SELECT 1;", "Snapshots.down.sql": "SELECT 1;"},
			want:  "unexpected file name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ListMigrations(writeMigrations(t, tt.files))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyMigrationsSkipsRecordedVersions(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"0001_snapshots.up.sql":     "CREATE TABLE snapshots (id TEXT);",
		"0001_snapshots.down.sql":   "DROP TABLE snapshots;",
		"0002_comparisons.up.sql":   "CREATE TABLE comparisons (id TEXT);",
		"0002_comparisons.down.sql": "DROP TABLE comparisons;",
		"README.md":                 "not a migration",
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	existsQuery := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`)
	insertVersion := regexp.QuoteMeta(`INSERT INTO schema_migrations(version) VALUES($1)`)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(existsQuery).WithArgs("0001_snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(existsQuery).WithArgs("0002_comparisons").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE comparisons (id TEXT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertVersion).WithArgs("0002_comparisons").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := ApplyMigrations(context.Background(), db, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_comparisons"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigrationsRollsBackFailedMigration(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"0001_snapshots.up.sql":   "CREATE TABLE snapshots (id TEXT);",
		"0001_snapshots.down.sql": "DROP TABLE snapshots;",
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("0001_snapshots").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE snapshots").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	applied, err := ApplyMigrations(context.Background(), db, dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 0001_snapshots")
	assert.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}
