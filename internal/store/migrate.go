package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var migrationPattern = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.up\.sql$`)

// Migration is one forward schema change, e.g. 0002_comparisons.up.sql with its
// 0002_comparisons.down.sql counterpart.
type Migration struct {
	Version  string
	Number   string
	UpPath   string
	DownPath string
}

// ListMigrations returns the migrations of dir in version order. Every .up.sql file
// must be named NNNN_name.up.sql, have a .down.sql twin and a unique number.
func ListMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations dir")
	}

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names[entry.Name()] = true
		}
	}

	var migrations []Migration
	numbers := map[string]string{}
	for name := range names {
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		match := migrationPattern.FindStringSubmatch(name)
		if match == nil {
			return nil, errors.WithHint(errors.Newf("migration %s: unexpected file name", name), "name migrations NNNN_description.up.sql")
		}
		version := match[1] + "_" + match[2]
		if other, ok := numbers[match[1]]; ok {
			return nil, errors.Newf("migration number %s used by both %s and %s", match[1], other, version)
		}
		numbers[match[1]] = version
		down := version + ".down.sql"
		if !names[down] {
			return nil, errors.Newf("migration %s has no %s", version, down)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Number:   match[1],
			UpPath:   filepath.Join(dir, name),
			DownPath: filepath.Join(dir, down),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// ApplyMigrations runs every migration of migrationsDir not yet recorded in
// schema_migrations, each in its own transaction, and returns the versions it
// applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations, err := ListMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	applied := []string{}
	for _, m := range migrations {
		if migrated, err := isMigrated(ctx, db, m.Version); err != nil {
			return applied, err
		} else if migrated {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return applied, err
		}
		logger.Info("migration applied", zap.String("version", m.Version))
		applied = append(applied, m.Version)
	}
	if len(applied) == 0 {
		logger.Debug("schema up to date", zap.Int("migrations", len(migrations)))
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	contents, err := os.ReadFile(m.UpPath)
	if err != nil {
		return errors.Wrapf(err, "read migration %s", m.Version)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin migration tx %s", m.Version)
	}
	if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "execute migration %s", m.Version)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, m.Version); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "record migration %s", m.Version)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit migration %s", m.Version)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return errors.Wrap(err, "ensure schema_migrations")
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "check migration %s", version)
	}
	return exists, nil
}
