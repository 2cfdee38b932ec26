package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/alexjbarnes/notesync/internal/store"
)

// Committer records a bookkeeping commit in the repository containing
// the notes directory after an executor run, so the next git status
// pass starts from a clean slate. Without a surrounding repository it
// does nothing.
type Committer struct {
	store  *store.Store
	device string
	logger *slog.Logger
}

// NewCommitter builds a Committer. The device label becomes the commit
// author name; empty falls back to "notesync".
func NewCommitter(st *store.Store, device string, logger *slog.Logger) *Committer {
	if device == "" {
		device = "notesync"
	}

	return &Committer{
		store:  st,
		device: device,
		logger: logger,
	}
}

// Commit stages paths and commits them with the given message. Paths no
// longer on disk are staged as deletions; paths absent from both the
// worktree and the index are skipped. A clean worktree produces no
// commit and no error.
func (c *Committer) Commit(ctx context.Context, paths []string, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	repo, err := git.PlainOpenWithOptions(c.store.Root(), &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			c.logger.Debug("no repository for bookkeeping commit", slog.String("dir", c.store.Root()))
			return nil
		}

		return fmt.Errorf("opening repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading worktree status: %w", err)
	}

	prefix, err := worktreePrefix(wt.Filesystem.Root(), c.store.Root())
	if err != nil {
		return err
	}

	staged := 0
	for _, p := range paths {
		full := prefix + p

		// An untracked path with no file behind it has nothing to
		// record, and staging it would fail.
		if fs := status.File(full); fs.Worktree == git.Untracked {
			if _, err := wt.Filesystem.Lstat(full); err != nil {
				continue
			}
		}

		if _, err := wt.Add(full); err != nil {
			return fmt.Errorf("staging %s: %w", p, err)
		}
		staged++
	}

	if staged == 0 {
		return nil
	}

	sha, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.device,
			Email: "notesync@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return nil
		}

		return fmt.Errorf("committing: %w", err)
	}

	c.logger.Debug("bookkeeping commit recorded",
		slog.String("commit", sha.String()),
		slog.Int("paths", staged))

	return nil
}
