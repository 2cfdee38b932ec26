package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	syncerrors "github.com/alexjbarnes/notesync/internal/errors"
)

// blobCacheSize bounds the hash-keyed blob content cache. Blobs are
// content-addressed, so a cached entry never goes stale.
const blobCacheSize = 512

// RemoteFile is one document in a remote tree snapshot. Fetched is
// false when the blob content could not be retrieved; such entries are
// classified as StatusUnknown rather than treated as empty files.
type RemoteFile struct {
	Path    string
	SHA     string
	Content string
	Fetched bool
}

// Snapshot is an immutable view of the remote branch tree at a single
// point in time. A fresh snapshot is built for every reconciliation
// pass; nothing in it survives across passes.
type Snapshot struct {
	// TreeSHA is the root tree hash of the listed tree, empty when the
	// remote has no matching branch.
	TreeSHA   string
	Files     map[string]RemoteFile
	Truncated bool
}

// Fetcher builds remote tree snapshots. One recursive listing per
// snapshot, blob contents fetched concurrently.
type Fetcher struct {
	remote   Remote
	branches []string
	tracked  func(path string) bool
	cache    *lru.Cache[string, string]
	logger   *slog.Logger
}

// NewFetcher creates a snapshot fetcher. branches is the ordered list
// of branch names to try; tracked filters tree entries to the document
// paths under sync (nil tracks everything).
func NewFetcher(remote Remote, branches []string, tracked func(path string) bool, logger *slog.Logger) (*Fetcher, error) {
	if len(branches) == 0 {
		return nil, fmt.Errorf("at least one branch name is required")
	}

	if tracked == nil {
		tracked = func(string) bool { return true }
	}

	cache, err := lru.New[string, string](blobCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating blob cache: %w", err)
	}

	return &Fetcher{
		remote:   remote,
		branches: branches,
		tracked:  tracked,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Snapshot lists the remote tree and fetches the content of every
// tracked blob. A missing branch or an empty repository yields an empty
// snapshot, not an error. Individual blob fetch failures leave the
// entry in the snapshot marked unfetched; authentication failures abort
// the whole build.
func (f *Fetcher) Snapshot(ctx context.Context) (*Snapshot, error) {
	tree, err := f.listTree(ctx)
	if err != nil {
		return nil, err
	}

	if tree == nil {
		f.logger.Info("remote branch not found, treating remote as empty",
			slog.Any("branches", f.branches),
		)

		return &Snapshot{Files: map[string]RemoteFile{}}, nil
	}

	if tree.Truncated {
		f.logger.Warn("remote tree listing truncated, snapshot is incomplete",
			slog.String("tree", tree.SHA),
		)
	}

	snap := &Snapshot{
		TreeSHA:   tree.SHA,
		Files:     make(map[string]RemoteFile),
		Truncated: tree.Truncated,
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for _, entry := range tree.Entries {
		if !f.tracked(entry.Path) {
			continue
		}

		g.Go(func() error {
			content, err := f.blobContent(gctx, entry.SHA)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if errors.Is(err, syncerrors.ErrAuthFailed) {
					return err
				}

				f.logger.Warn("fetching remote blob",
					slog.String("path", entry.Path),
					slog.String("sha", entry.SHA),
					slog.String("error", err.Error()),
				)
				snap.Files[entry.Path] = RemoteFile{Path: entry.Path, SHA: entry.SHA}

				return nil
			}

			snap.Files[entry.Path] = RemoteFile{
				Path:    entry.Path,
				SHA:     entry.SHA,
				Content: content,
				Fetched: true,
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching remote snapshot: %w", err)
	}

	var total uint64
	for _, rf := range snap.Files {
		total += uint64(len(rf.Content))
	}

	f.logger.Debug("remote snapshot built",
		slog.Int("files", len(snap.Files)),
		slog.String("size", humanize.Bytes(total)),
	)

	return snap, nil
}

// listTree tries each configured branch in order and returns the first
// recursive listing found, or nil when no branch exists.
func (f *Fetcher) listTree(ctx context.Context) (*Tree, error) {
	for _, branch := range f.branches {
		tree, err := f.remote.RecursiveTree(ctx, branch)
		if err == nil {
			return tree, nil
		}

		if errors.Is(err, syncerrors.ErrNotFound) || errors.Is(err, syncerrors.ErrEmptyRepository) {
			continue
		}

		return nil, fmt.Errorf("listing remote tree for %s: %w", branch, err)
	}

	return nil, nil
}

// blobContent returns a blob's content, serving repeat hashes from the
// cache.
func (f *Fetcher) blobContent(ctx context.Context, sha string) (string, error) {
	if content, ok := f.cache.Get(sha); ok {
		return content, nil
	}

	raw, err := f.remote.Blob(ctx, sha)
	if err != nil {
		return "", err
	}

	content := string(raw)
	f.cache.Add(sha, content)

	return content, nil
}
