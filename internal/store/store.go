// Package store is the local document store: a normalized, filtered
// view of the notes directory. Paths are slash-separated, NFC
// normalized, and relative to the root; listings cover tracked
// documents only, as defined by the extension list and ignore rules.
package store

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

const (
	// dirPerm is the permission mode for directories created inside the
	// notes tree. Group and other get read+execute for editor access.
	dirPerm = fs.FileMode(0o755)

	// filePerm is the permission mode for documents written inside the
	// notes tree.
	filePerm = fs.FileMode(0o644)
)

// Store provides thread-safe document access rooted at the notes
// directory. All writes are serialized by an exclusive lock; reads take
// a shared lock to avoid observing partial writes. The reconciler, pull
// executor, oracle, and watcher all go through this type.
type Store struct {
	fs    billy.Filesystem
	root  string
	rules *Rules
	mu    sync.RWMutex

	logger *slog.Logger
}

// New creates a Store rooted at the given directory, creating it if it
// does not exist. The directory must be an absolute path (resolved at
// config load time).
func New(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("notes directory must not be empty")
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating notes directory %s: %w", dir, err)
	}

	s, err := NewWithFS(osfs.New(dir), logger)
	if err != nil {
		return nil, err
	}

	s.root = dir

	return s, nil
}

// NewWithFS creates a Store over an arbitrary billy filesystem. Used by
// tests with memfs; production code goes through New.
func NewWithFS(fsys billy.Filesystem, logger *slog.Logger) (*Store, error) {
	s := &Store{fs: fsys, logger: logger}

	rules, err := loadRules(fsys)
	if err != nil {
		return nil, err
	}

	s.rules = rules

	return s, nil
}

// Root returns the root directory of the store, empty when the store is
// not backed by the OS filesystem.
func (s *Store) Root() string {
	return s.root
}

// Read returns a document's content by normalized relative path.
func (s *Store) Read(relPath string) (string, error) {
	relPath, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := util.ReadFile(s.fs, relPath)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// Write stores a document's content by normalized relative path,
// creating parent directories as needed.
func (s *Store) Write(relPath, content string) error {
	relPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := path.Dir(relPath); dir != "." {
		if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("creating directory for %s: %w", relPath, err)
		}
	}

	return util.WriteFile(s.fs, relPath, []byte(content), filePerm)
}

// Exists reports whether a document exists at the path, tracked or not.
func (s *Store) Exists(relPath string) bool {
	relPath, err := s.resolve(relPath)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err = s.fs.Stat(relPath)

	return err == nil
}

// List returns the sorted normalized paths of every tracked document in
// the tree.
func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var paths []string

	err := util.Walk(s.fs, ".", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if info.IsDir() {
			return nil
		}

		rel := NormalizePath(p)
		if s.rules.Tracked(rel) {
			paths = append(paths, rel)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking notes directory: %w", err)
	}

	sort.Strings(paths)

	return paths, nil
}

// Tracked reports whether the path is a document under sync: extension
// listed and not matched by an ignore rule. Applies to both local and
// remote paths.
func (s *Store) Tracked(relPath string) bool {
	return s.rules.Tracked(NormalizePath(relPath))
}

// resolve normalizes a relative path and rejects anything that could
// escape the root: empty paths, null bytes, and ".." segments. Billy's
// chroot keeps OS-backed stores contained, this check is the shared
// front door for all backends.
func (s *Store) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("empty path")
	}

	if strings.ContainsRune(relPath, 0) {
		return "", fmt.Errorf("path contains null byte: %q", relPath)
	}

	relPath = NormalizePath(relPath)

	for _, seg := range strings.Split(relPath, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path contains ..: %q", relPath)
		}
	}

	if relPath == "" {
		return "", fmt.Errorf("path resolves to the root")
	}

	return relPath, nil
}
