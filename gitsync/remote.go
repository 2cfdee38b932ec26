package gitsync

import "context"

//go:generate mockgen -source=remote.go -destination=mock_remote_test.go -package=gitsync

// TreeEntry is one blob row in a recursive tree listing.
type TreeEntry struct {
	Path string
	SHA  string
}

// Tree is a recursive listing of a remote branch tree. SHA is the root
// tree hash, used as the base when layering a new tree on top of it.
// Truncated is set when the listing was cut off server-side.
type Tree struct {
	SHA       string
	Entries   []TreeEntry
	Truncated bool
}

// TreeWrite is one entry in a tree creation request. SHA points at an
// existing blob; a nil SHA removes the path from the base tree.
type TreeWrite struct {
	Path string
	SHA  *string
}

// Remote is the subset of the Git Data API the sync engine uses. Lookup
// failures are reported with errors.ErrNotFound (and an empty repository
// with errors.ErrEmptyRepository) so callers can fall back or treat the
// remote as empty.
type Remote interface {
	// BranchTip returns the commit hash a branch points at.
	BranchTip(ctx context.Context, branch string) (string, error)

	// RecursiveTree lists every blob reachable from ref, which may be a
	// branch name or a commit/tree hash.
	RecursiveTree(ctx context.Context, ref string) (*Tree, error)

	// Blob returns the raw content of a blob by hash.
	Blob(ctx context.Context, sha string) ([]byte, error)

	// CreateBlob stores content as a new blob and returns its hash.
	CreateBlob(ctx context.Context, content []byte) (string, error)

	// CreateTree creates a tree layered on baseTree and returns its hash.
	CreateTree(ctx context.Context, baseTree string, entries []TreeWrite) (string, error)

	// CreateCommit creates a commit object and returns its hash.
	CreateCommit(ctx context.Context, tree, parent, message string) (string, error)

	// UpdateRef fast-forwards a branch to the given commit hash.
	UpdateRef(ctx context.Context, branch, sha string) error
}
