package gitsync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeStore is an in-memory Store. Read and write failures can be
// injected per path.
type fakeStore struct {
	files      map[string]string
	failReads  map[string]error
	failWrites map[string]error
}

func newFakeStore(files map[string]string) *fakeStore {
	if files == nil {
		files = make(map[string]string)
	}
	return &fakeStore{files: files}
}

func (s *fakeStore) Read(path string) (string, error) {
	if err := s.failReads[path]; err != nil {
		return "", err
	}
	content, ok := s.files[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return content, nil
}

func (s *fakeStore) Write(path, content string) error {
	if err := s.failWrites[path]; err != nil {
		return err
	}
	s.files[path] = content
	return nil
}

func (s *fakeStore) Exists(path string) bool {
	_, ok := s.files[path]
	return ok
}

func (s *fakeStore) List() ([]string, error) {
	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// fakeCommitter records bookkeeping commit calls.
type fakeCommitter struct {
	calls   int
	paths   []string
	message string
	err     error
}

func (c *fakeCommitter) Commit(_ context.Context, paths []string, message string) error {
	c.calls++
	c.paths = paths
	c.message = message
	return c.err
}

// remoteFile builds a fetched snapshot entry with the content's real
// blob hash.
func remoteFile(path, content string) RemoteFile {
	return RemoteFile{Path: path, SHA: BlobHash(content), Content: content, Fetched: true}
}

// failedFile builds a snapshot entry whose blob fetch failed.
func failedFile(path, sha string) RemoteFile {
	return RemoteFile{Path: path, SHA: sha}
}

func snapshotOf(files ...RemoteFile) *Snapshot {
	snap := &Snapshot{TreeSHA: "base-tree", Files: make(map[string]RemoteFile, len(files))}
	for _, f := range files {
		snap.Files[f.Path] = f
	}
	return snap
}
