package gitsync

import "context"

// Store is the local document store the engine reads and writes. Paths
// are relative to the notes root, slash-separated, and case-sensitive;
// the engine handles case-insensitive collision detection itself.
type Store interface {
	Read(path string) (string, error)
	Write(path, content string) error
	Exists(path string) bool

	// List returns every tracked document path, sorted.
	List() ([]string, error)
}

// Committer records a local bookkeeping commit covering paths after an
// executor run. Executors treat a failed bookkeeping commit as a
// warning, never as a run failure.
type Committer interface {
	Commit(ctx context.Context, paths []string, message string) error
}

// Change is one local change record from the change oracle.
type Change struct {
	Path   string `json:"path"`
	Status Status `json:"status"`
}
