package gitsync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
)

// Sibling file labels used when a case conflict is materialized for
// manual resolution.
const (
	remoteSiblingLabel = "remote"
	localSiblingLabel  = "local"
)

// PullResult reports what a pull run wrote.
type PullResult struct {
	Written []string `json:"written"`

	// Notices describe case conflicts that were materialized as sibling
	// files and need manual resolution.
	Notices []string `json:"notices,omitempty"`
}

// PullExecutor applies the remote side of a diff list to the local
// store. It fails fast on the first write error and never rolls back:
// documents already written stay written, and the remaining diffs are
// rediscovered by the next reconciliation.
type PullExecutor struct {
	store     Store
	committer Committer
	label     string
	logger    *slog.Logger
}

// NewPullExecutor creates a pull executor. label feeds the bookkeeping
// commit message.
func NewPullExecutor(store Store, committer Committer, label string, logger *slog.Logger) *PullExecutor {
	return &PullExecutor{
		store:     store,
		committer: committer,
		label:     label,
		logger:    logger,
	}
}

// Apply writes each eligible diff to the store. StatusAdded and
// StatusUnknown diffs have nothing to pull and are skipped. After all
// writes succeed a single local bookkeeping commit records them; a
// commit failure is logged and does not fail the run. On error the
// returned result covers the writes applied before the failure.
func (p *PullExecutor) Apply(ctx context.Context, diffs []Diff) (*PullResult, error) {
	res := &PullResult{}

	// Case-insensitive index of the local tree, for collision checks at
	// apply time. write keeps it current, so a diff sees documents
	// created earlier in the same run.
	folded, err := p.foldedIndex()
	if err != nil {
		return res, err
	}

	for _, d := range diffs {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		switch d.Status {
		case StatusAdded, StatusUnknown, StatusDeleted:
			continue

		case StatusRemoteOnly:
			if err := p.pullRemoteOnly(d, folded, res); err != nil {
				return res, err
			}

		case StatusRemoteModified:
			target := d.Path
			if !p.store.Exists(target) && d.ObservedLocalPath != "" && p.store.Exists(d.ObservedLocalPath) {
				target = d.ObservedLocalPath
			}

			if err := p.write(target, d.RemoteContent, folded, res); err != nil {
				return res, err
			}

		case StatusModified:
			// Remote wins; divergent content is replaced whole.
			if err := p.write(d.Path, d.RemoteContent, folded, res); err != nil {
				return res, err
			}

		case StatusCaseConflictOnly:
			if err := p.materializeConflict(d, folded, res); err != nil {
				return res, err
			}
		}
	}

	if len(res.Written) > 0 {
		msg := Message(len(res.Written), p.label)
		if err := p.committer.Commit(ctx, res.Written, msg); err != nil {
			p.logger.Warn("recording local sync commit",
				slog.String("error", err.Error()),
			)
		}
	}

	p.logger.Info("pull complete",
		slog.Int("written", len(res.Written)),
		slog.Int("conflicts", len(res.Notices)),
	)

	return res, nil
}

// pullRemoteOnly creates a remote-only document locally. If a local
// file already occupies the path under a different casing, writing
// directly would clobber it on case-insensitive filesystems, so both
// versions are materialized as sibling files instead.
func (p *PullExecutor) pullRemoteOnly(d Diff, folded map[string]string, res *PullResult) error {
	observed, ok := folded[strings.ToLower(d.Path)]
	if !ok || observed == d.Path {
		return p.write(d.Path, d.RemoteContent, folded, res)
	}

	remotePath := p.uniqueSiblingPath(d.Path, remoteSiblingLabel)
	if err := p.write(remotePath, d.RemoteContent, folded, res); err != nil {
		return err
	}

	localContent, err := p.store.Read(observed)
	if err != nil {
		return fmt.Errorf("reading %s for conflict backup: %w", observed, err)
	}

	localPath := p.uniqueSiblingPath(observed, localSiblingLabel)
	if err := p.write(localPath, localContent, folded, res); err != nil {
		return err
	}

	notice := fmt.Sprintf("case conflict: remote %s collides with local %s; wrote %s and %s, resolve manually",
		d.Path, observed, remotePath, localPath)
	res.Notices = append(res.Notices, notice)
	p.logger.Warn("pull: case collision materialized", slog.String("path", d.Path))

	return nil
}

// materializeConflict writes both versions of a case-conflict-only diff
// as sibling files. The originals are left untouched.
func (p *PullExecutor) materializeConflict(d Diff, folded map[string]string, res *PullResult) error {
	remotePath := p.uniqueSiblingPath(d.Path, remoteSiblingLabel)
	if err := p.write(remotePath, d.RemoteContent, folded, res); err != nil {
		return err
	}

	localContent, err := p.store.Read(d.ObservedLocalPath)
	if err != nil {
		// The captured content from reconciliation still serves as the
		// backup when the live read fails.
		localContent = d.LocalContent
	}

	localPath := p.uniqueSiblingPath(d.ObservedLocalPath, localSiblingLabel)
	if err := p.write(localPath, localContent, folded, res); err != nil {
		return err
	}

	notice := fmt.Sprintf("case conflict: %s and %s have the same content under different casing; wrote %s and %s, resolve manually",
		d.Path, d.ObservedLocalPath, remotePath, localPath)
	res.Notices = append(res.Notices, notice)
	p.logger.Warn("pull: case conflict materialized",
		slog.String("remote", d.Path),
		slog.String("local", d.ObservedLocalPath),
	)

	return nil
}

// write stores content at target and records the new casing in folded.
func (p *PullExecutor) write(target, content string, folded map[string]string, res *PullResult) error {
	if err := p.store.Write(target, content); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}

	folded[strings.ToLower(target)] = target
	res.Written = append(res.Written, target)
	p.logger.Debug("pull: wrote",
		slog.String("path", target),
		slog.Int("bytes", len(content)),
	)

	return nil
}

// foldedIndex maps lowercased local paths to their on-disk casing.
func (p *PullExecutor) foldedIndex() (map[string]string, error) {
	paths, err := p.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing local documents: %w", err)
	}

	folded := make(map[string]string, len(paths))
	for _, pth := range paths {
		folded[strings.ToLower(pth)] = pth
	}

	return folded, nil
}

// uniqueSiblingPath returns "base (label)ext" next to the given path,
// appending a counter if that name is already taken.
func (p *PullExecutor) uniqueSiblingPath(docPath, label string) string {
	ext := path.Ext(docPath)
	base := strings.TrimSuffix(docPath, ext)

	candidate := fmt.Sprintf("%s (%s)%s", base, label, ext)
	if !p.store.Exists(candidate) {
		return candidate
	}

	for i := 1; i < 100; i++ {
		candidate = fmt.Sprintf("%s (%s %d)%s", base, label, i, ext)
		if !p.store.Exists(candidate) {
			return candidate
		}
	}

	return candidate
}
