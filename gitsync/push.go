package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	syncerrors "github.com/alexjbarnes/notesync/internal/errors"
)

// PushResult reports what a push run changed.
type PushResult struct {
	// CommitSHA is the created commit, empty when there was nothing to
	// push.
	CommitSHA string `json:"commitSha,omitempty"`

	Pushed  []string `json:"pushed,omitempty"`
	Deleted []string `json:"deleted,omitempty"`

	// Skipped lists deletion candidates whose remote copy was already
	// gone by push time.
	Skipped []string `json:"skipped,omitempty"`
}

// PushExecutor builds a commit from the local side of a diff list and
// advances the remote branch to it: blobs, then a tree layered on the
// current one, then a commit, then the ref. Every step before the ref
// update only creates unreferenced objects, so a failure part-way
// leaves the branch untouched.
type PushExecutor struct {
	remote    Remote
	committer Committer
	branches  []string
	label     string
	logger    *slog.Logger
}

// NewPushExecutor creates a push executor. branches is the ordered list
// of branch names to resolve and advance; label feeds the commit
// message.
func NewPushExecutor(remote Remote, committer Committer, branches []string, label string, logger *slog.Logger) *PushExecutor {
	return &PushExecutor{
		remote:    remote,
		committer: committer,
		branches:  branches,
		label:     label,
		logger:    logger,
	}
}

// Apply pushes the eligible diffs as a single commit. StatusAdded,
// StatusModified, and StatusRemoteModified upload the local content;
// StatusRemoteOnly deletes the remote copy, but only after re-checking
// it still exists so a deletion that already happened is skipped
// without error. Case-conflict-only and unknown diffs never push. With
// nothing eligible the run is a no-op.
func (p *PushExecutor) Apply(ctx context.Context, diffs []Diff) (*PushResult, error) {
	branch, tip, err := p.resolveTip(ctx)
	if err != nil {
		return nil, err
	}

	// Deletion safety: list the tree as it stands right now rather than
	// trusting the snapshot the diffs were classified against.
	tree, err := p.remote.RecursiveTree(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("listing remote tree before push: %w", err)
	}

	remotePaths := mapset.NewThreadUnsafeSet[string]()
	for _, entry := range tree.Entries {
		remotePaths.Add(entry.Path)
	}

	res := &PushResult{}

	var uploads []Diff

	for _, d := range diffs {
		switch d.Status {
		case StatusAdded, StatusModified, StatusRemoteModified:
			uploads = append(uploads, d)

		case StatusRemoteOnly:
			if remotePaths.Contains(d.Path) {
				res.Deleted = append(res.Deleted, d.Path)
			} else {
				res.Skipped = append(res.Skipped, d.Path)
				p.logger.Info("push: skipping deletion, path already gone",
					slog.String("path", d.Path),
				)
			}

		default:
			// case-conflict-only, unknown and deleted are never pushed.
		}
	}

	if len(uploads) == 0 && len(res.Deleted) == 0 {
		p.logger.Info("push: nothing to do")
		return res, nil
	}

	p.logger.Info("pushing",
		slog.String("branch", branch),
		slog.Int("uploads", len(uploads)),
		slog.Int("deletions", len(res.Deleted)),
	)

	shas := make([]string, len(uploads))

	g, gctx := errgroup.WithContext(ctx)

	for i, d := range uploads {
		g.Go(func() error {
			sha, err := p.remote.CreateBlob(gctx, []byte(d.LocalContent))
			if err != nil {
				return fmt.Errorf("creating blob for %s: %w", d.Path, err)
			}

			shas[i] = sha

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]TreeWrite, 0, len(uploads)+len(res.Deleted))

	for i, d := range uploads {
		entries = append(entries, TreeWrite{Path: d.Path, SHA: &shas[i]})
		res.Pushed = append(res.Pushed, d.Path)
	}

	for _, path := range res.Deleted {
		entries = append(entries, TreeWrite{Path: path, SHA: nil})
	}

	treeSHA, err := p.remote.CreateTree(ctx, tree.SHA, entries)
	if err != nil {
		return nil, fmt.Errorf("creating tree: %w", err)
	}

	msg := Message(len(res.Pushed)+len(res.Deleted), p.label)

	commitSHA, err := p.remote.CreateCommit(ctx, treeSHA, tip, msg)
	if err != nil {
		return nil, fmt.Errorf("creating commit: %w", err)
	}

	if err := p.advanceRef(ctx, commitSHA); err != nil {
		return nil, err
	}

	res.CommitSHA = commitSHA

	p.logger.Info("push complete",
		slog.String("commit", commitSHA),
		slog.Int("pushed", len(res.Pushed)),
		slog.Int("deleted", len(res.Deleted)),
	)

	paths := make([]string, 0, len(res.Pushed)+len(res.Deleted))
	paths = append(paths, res.Pushed...)
	paths = append(paths, res.Deleted...)

	if err := p.committer.Commit(ctx, paths, msg); err != nil {
		p.logger.Warn("recording local sync commit",
			slog.String("error", err.Error()),
		)
	}

	return res, nil
}

// resolveTip returns the first configured branch that exists and its
// tip commit. Pushing requires an existing branch; when none is found
// the run fails.
func (p *PushExecutor) resolveTip(ctx context.Context) (string, string, error) {
	for _, branch := range p.branches {
		sha, err := p.remote.BranchTip(ctx, branch)
		if err == nil {
			return branch, sha, nil
		}

		if !errors.Is(err, syncerrors.ErrNotFound) {
			return "", "", fmt.Errorf("resolving branch %s: %w", branch, err)
		}
	}

	return "", "", fmt.Errorf("resolving branch tip (tried %d branches): %w", len(p.branches), syncerrors.ErrNotFound)
}

// advanceRef fast-forwards the first configured branch that exists to
// the new commit. Only a missing branch falls through to the next name;
// any other failure (a concurrent non-fast-forward push, for example)
// aborts immediately.
func (p *PushExecutor) advanceRef(ctx context.Context, sha string) error {
	var lastErr error

	for _, branch := range p.branches {
		err := p.remote.UpdateRef(ctx, branch, sha)
		if err == nil {
			return nil
		}

		if !errors.Is(err, syncerrors.ErrNotFound) {
			return fmt.Errorf("updating ref %s: %w", branch, err)
		}

		lastErr = err
	}

	return fmt.Errorf("no branch could be advanced: %w", lastErr)
}
