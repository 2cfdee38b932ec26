// Package oracle detects which documents changed locally since the
// last sync. Detection strategies are tried in order: git worktree
// status when the notes directory sits inside a git repository, then a
// full scan that flags every tracked document and leaves it to
// reconciliation to drop the ones whose content already matches the
// remote.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/alexjbarnes/notesync/gitsync"
	"github.com/alexjbarnes/notesync/internal/store"
)

// Oracle reports locally changed document paths as notes-relative
// slash paths, filtered to tracked documents.
type Oracle struct {
	store      *store.Store
	logger     *slog.Logger
	strategies []strategy
}

type strategy struct {
	name   string
	detect func(ctx context.Context) ([]gitsync.Change, error)
}

// New builds an Oracle over the given store.
func New(st *store.Store, logger *slog.Logger) *Oracle {
	o := &Oracle{
		store:  st,
		logger: logger,
	}
	o.strategies = []strategy{
		{name: "git-status", detect: o.gitChanges},
		{name: "full-scan", detect: o.scanChanges},
	}

	return o
}

// Changes returns the local change records for the next reconciliation
// pass. The first strategy that succeeds wins.
func (o *Oracle) Changes(ctx context.Context) ([]gitsync.Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var lastErr error
	for _, s := range o.strategies {
		changes, err := s.detect(ctx)
		if err != nil {
			o.logger.Debug("change detection strategy failed",
				slog.String("strategy", s.name),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}

		o.logger.Debug("local changes detected",
			slog.String("strategy", s.name),
			slog.Int("count", len(changes)))

		return changes, nil
	}

	return nil, fmt.Errorf("detecting local changes: %w", lastErr)
}

// gitChanges reads the worktree status of the repository containing the
// notes directory and maps it to change records.
func (o *Oracle) gitChanges(_ context.Context) ([]gitsync.Change, error) {
	repo, err := git.PlainOpenWithOptions(o.store.Root(), &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}

	prefix, err := worktreePrefix(wt.Filesystem.Root(), o.store.Root())
	if err != nil {
		return nil, err
	}

	changes := make([]gitsync.Change, 0, len(status))
	for path, fs := range status {
		rel, ok := strings.CutPrefix(filepath.ToSlash(path), prefix)
		if !ok {
			continue
		}

		rel = store.NormalizePath(rel)
		if !o.store.Tracked(rel) {
			continue
		}

		mapped, ok := mapStatus(fs)
		if !ok {
			continue
		}

		changes = append(changes, gitsync.Change{Path: rel, Status: mapped})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	return changes, nil
}

// scanChanges flags every tracked document as modified.
func (o *Oracle) scanChanges(_ context.Context) ([]gitsync.Change, error) {
	paths, err := o.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	changes := make([]gitsync.Change, 0, len(paths))
	for _, p := range paths {
		changes = append(changes, gitsync.Change{Path: p, Status: gitsync.StatusModified})
	}

	return changes, nil
}

// mapStatus converts a git file status to a change status. The worktree
// state wins over the staging state so an uncommitted edit on top of a
// staged one still reads as a modification.
func mapStatus(fs *git.FileStatus) (gitsync.Status, bool) {
	code := fs.Worktree
	if code == git.Unmodified {
		code = fs.Staging
	}

	switch code {
	case git.Untracked, git.Added, git.Copied:
		return gitsync.StatusAdded, true
	case git.Modified, git.Renamed, git.UpdatedButUnmerged:
		return gitsync.StatusModified, true
	case git.Deleted:
		return gitsync.StatusDeleted, true
	}

	return "", false
}

// worktreePrefix returns the slash-terminated prefix that maps
// worktree-relative paths to notes-relative ones. Empty when the notes
// directory is the worktree root.
func worktreePrefix(worktreeRoot, notesDir string) (string, error) {
	rel, err := filepath.Rel(worktreeRoot, notesDir)
	if err != nil {
		return "", fmt.Errorf("resolving notes directory inside worktree: %w", err)
	}

	if rel == "." {
		return "", nil
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("notes directory %s is outside worktree %s", notesDir, worktreeRoot)
	}

	return filepath.ToSlash(rel) + "/", nil
}
