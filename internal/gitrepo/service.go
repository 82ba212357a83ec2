package gitrepo

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"manuscripts/api/internal/manuscript"
	"manuscripts/api/internal/store"
)

const (
	snapshotFile = "snapshot.json"
	mainBranch   = "main"
)

// ErrNotFound reports a document without a repository or a revision the repository
// does not contain.
var ErrNotFound = errors.New("snapshot revision not found")

// ErrInvalidDocumentID reports a document id that does not name a single directory.
var ErrInvalidDocumentID = errors.New("invalid document id")

// Service keeps one git repository per document. Every saved snapshot is a commit
// of snapshot.json on main, tagged with the snapshot id.
type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// SaveSnapshot commits snap to the document repository, creating the repository on
// first use.
func (s *Service) SaveSnapshot(documentID string, snap manuscript.Snapshot, author string) (store.CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(documentID)
	if err != nil {
		return store.CommitInfo{}, err
	}

	message := fmt.Sprintf("Snapshot %s\n\nsnapshot: %s", snapshotTitle(snap), snap.ID)
	hash, err := s.commit(repo, snap, author, message)
	if err != nil {
		return store.CommitInfo{}, err
	}
	if snap.ID != "" {
		if err := createTag(repo, hash, snap.ID); err != nil {
			return store.CommitInfo{}, err
		}
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, errors.Wrap(err, "read commit object")
	}
	return toCommitInfo(commitObj), nil
}

// LoadSnapshot reads the snapshot stored at revision, which may be a commit hash,
// an abbreviated hash or a snapshot id.
func (s *Service) LoadSnapshot(documentID, revision string) (manuscript.Snapshot, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return manuscript.Snapshot{}, err
	}
	resolvedHash, err := resolveHash(repo, revision)
	if err != nil {
		return manuscript.Snapshot{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return manuscript.Snapshot{}, errors.Mark(errors.Wrapf(err, "read commit %s", revision), ErrNotFound)
	}
	return readSnapshotFromCommit(commitObj)
}

// History lists the snapshot commits of a document, newest first.
func (s *Service) History(documentID string, limit int) ([]store.CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve branch %s", mainBranch)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, errors.Wrap(err, "read log")
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0, max(limit, 0))
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "iterate log")
	}
	return items, nil
}

// repoPath resolves the repository directory of a document. Ids that are not a
// single path element are rejected.
func (s *Service) repoPath(documentID string) (string, error) {
	if documentID == "" || documentID == "." || documentID == ".." ||
		strings.ContainsAny(documentID, `/\`) || filepath.Base(documentID) != documentID {
		return "", errors.Wrapf(ErrInvalidDocumentID, "%q", documentID)
	}
	return filepath.Join(s.baseDir, documentID), nil
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func (s *Service) open(documentID string) (*git.Repository, error) {
	path, err := s.repoPath(documentID)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, errors.Wrapf(ErrNotFound, "document %s has no snapshots", documentID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open repo")
	}
	return repo, nil
}

func (s *Service) openOrInit(documentID string) (*git.Repository, error) {
	path, err := s.repoPath(documentID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return nil, errors.Wrap(err, "open repo")
		}
		return repo, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "stat repo path")
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errors.Wrap(err, "create repo dir")
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "init repo")
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, errors.Wrap(err, "set HEAD to main")
	}
	return repo, nil
}

func (s *Service) commit(repo *git.Repository, snap manuscript.Snapshot, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "open worktree")
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "marshal snapshot")
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "write %s", snapshotFile)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "git add snapshot")
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.manuscripts.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "commit snapshot")
	}
	return hash, nil
}

func createTag(repo *git.Repository, hash plumbing.Hash, name string) error {
	_, err := repo.CreateTag(name, hash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "Manuscripts",
			Email: "manuscripts@localhost",
			When:  time.Now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return errors.Wrap(err, "create tag")
	}
	return nil
}

func readSnapshotFromCommit(commitObj *object.Commit) (manuscript.Snapshot, error) {
	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return manuscript.Snapshot{}, errors.Wrapf(err, "load %s from commit", snapshotFile)
	}
	reader, err := file.Reader()
	if err != nil {
		return manuscript.Snapshot{}, errors.Wrap(err, "open snapshot reader")
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return manuscript.Snapshot{}, errors.Wrap(err, "read snapshot bytes")
	}

	var snap manuscript.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return manuscript.Snapshot{}, errors.Wrap(err, "decode commit snapshot")
	}
	return snap, nil
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String(),
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func snapshotTitle(snap manuscript.Snapshot) string {
	if name := strings.TrimSpace(snap.Name); name != "" {
		return name
	}
	return snap.ID
}

func sanitizeEmail(input string) string {
	bytes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			bytes = append(bytes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			bytes = append(bytes, '.')
		}
	}
	if len(bytes) == 0 {
		return "user"
	}
	return string(bytes)
}

func resolveHash(repo *git.Repository, revision string) (plumbing.Hash, error) {
	if len(revision) == 40 && plumbing.IsHash(revision) {
		return plumbing.NewHash(revision), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return plumbing.ZeroHash, errors.Mark(errors.Wrapf(err, "resolve revision %s", revision), ErrNotFound)
	}
	return *resolved, nil
}
