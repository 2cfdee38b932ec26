package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Reconciler classifies documents into sync statuses by comparing three
// sources of truth: the oracle's local change records, live local
// content, and a remote tree snapshot. It holds no state between runs;
// every call produces a complete, fresh diff list.
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

// NewReconciler creates a reconciler over the given document store.
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Reconcile runs the two-pass classification. Pass A resolves every
// locally flagged change against the snapshot; pass B sweeps the
// remaining snapshot paths for remote-side changes, including
// case-insensitive path collisions. Content equality is always judged
// on line-ending normalized text, with the blob hash as a fast path:
// equal hashes skip the comparison, unequal hashes never classify on
// their own.
func (r *Reconciler) Reconcile(ctx context.Context, changes []Change, snap *Snapshot) ([]Diff, error) {
	r.logger.Info("reconciliation starting",
		slog.Int("local_changes", len(changes)),
		slog.Int("remote_files", len(snap.Files)),
	)

	covered := mapset.NewThreadUnsafeSet[string]()

	var diffs []Diff

	// Pass A: locally flagged paths.
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		diff, handled, err := r.classifyLocal(change, snap)
		if err != nil {
			return nil, err
		}

		if !handled {
			// The flagged file no longer exists on disk; leave it for
			// pass B so a surviving remote copy surfaces as remote-only.
			continue
		}

		covered.Add(change.Path)

		if diff != nil {
			diffs = append(diffs, *diff)
		}
	}

	// Pass B: sweep snapshot paths not already resolved, in sorted
	// order for deterministic output.
	remotePaths := make([]string, 0, len(snap.Files))
	for path := range snap.Files {
		remotePaths = append(remotePaths, path)
	}

	sort.Strings(remotePaths)

	localPaths, err := r.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing local documents: %w", err)
	}

	exact := mapset.NewThreadUnsafeSet(localPaths...)

	// Case-insensitive index. When several local paths fold to the same
	// key the last one wins; the store itself is case-sensitive.
	folded := make(map[string]string, len(localPaths))
	for _, p := range localPaths {
		folded[strings.ToLower(p)] = p
	}

	for _, path := range remotePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if covered.Contains(path) {
			continue
		}

		diff, err := r.classifyRemote(path, snap.Files[path], exact, folded)
		if err != nil {
			return nil, err
		}

		if diff != nil {
			diffs = append(diffs, *diff)
		}
	}

	r.logger.Info("reconciliation complete", slog.Int("diffs", len(diffs)))

	return diffs, nil
}

// classifyLocal resolves one oracle change record against the snapshot.
// handled is false when the record could not be acted on (the file is
// gone from disk) and the path should stay visible to pass B.
func (r *Reconciler) classifyLocal(change Change, snap *Snapshot) (diff *Diff, handled bool, err error) {
	remote, onRemote := snap.Files[change.Path]

	switch change.Status {
	case StatusDeleted:
		if !onRemote {
			// Deleted locally and absent remotely, nothing left to sync.
			return nil, true, nil
		}

		if !remote.Fetched {
			return unknownDiff(remote, MatchNone), true, nil
		}

		additions, deletions := countLineChanges("", normalizeEOL(remote.Content))

		return &Diff{
			Path:          change.Path,
			Status:        StatusRemoteOnly,
			RemoteContent: remote.Content,
			RemoteHash:    remote.SHA,
			Additions:     additions,
			Deletions:     deletions,
			Match:         MatchNone,
		}, true, nil

	case StatusAdded, StatusModified:
		local, err := r.store.Read(change.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, false, nil
			}

			return nil, false, fmt.Errorf("reading %s: %w", change.Path, err)
		}

		if !onRemote {
			additions, deletions := countLineChanges(normalizeEOL(local), "")

			return &Diff{
				Path:         change.Path,
				Status:       StatusAdded,
				LocalContent: local,
				Additions:    additions,
				Deletions:    deletions,
				Match:        MatchNone,
			}, true, nil
		}

		if !remote.Fetched {
			d := unknownDiff(remote, MatchExact)
			d.LocalContent = local

			return d, true, nil
		}

		// Fast path: identical blob hash means identical bytes.
		if BlobHash(local) == remote.SHA {
			return nil, true, nil
		}

		normLocal := normalizeEOL(local)
		normRemote := normalizeEOL(remote.Content)

		if normLocal == normRemote {
			return nil, true, nil
		}

		additions, deletions := countLineChanges(normLocal, normRemote)

		return &Diff{
			Path:          change.Path,
			Status:        StatusModified,
			LocalContent:  local,
			RemoteContent: remote.Content,
			RemoteHash:    remote.SHA,
			Additions:     additions,
			Deletions:     deletions,
			Match:         MatchExact,
		}, true, nil

	default:
		r.logger.Warn("ignoring change record with unexpected status",
			slog.String("path", change.Path),
			slog.String("status", string(change.Status)),
		)

		return nil, true, nil
	}
}

// classifyRemote resolves one unflagged snapshot path against the local
// tree. An exact-case match always wins; a case-insensitive match is
// considered only when no exact match exists.
func (r *Reconciler) classifyRemote(path string, remote RemoteFile, exact mapset.Set[string], folded map[string]string) (*Diff, error) {
	if !remote.Fetched {
		return unknownDiff(remote, MatchNone), nil
	}

	normRemote := normalizeEOL(remote.Content)

	if exact.Contains(path) {
		local, err := r.store.Read(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return remoteOnlyDiff(remote, normRemote), nil
			}

			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		if BlobHash(local) == remote.SHA {
			return nil, nil
		}

		normLocal := normalizeEOL(local)
		if normLocal == normRemote {
			return nil, nil
		}

		additions, deletions := countLineChanges(normLocal, normRemote)

		return &Diff{
			Path:          path,
			Status:        StatusRemoteModified,
			LocalContent:  local,
			RemoteContent: remote.Content,
			RemoteHash:    remote.SHA,
			Additions:     additions,
			Deletions:     deletions,
			Match:         MatchExact,
		}, nil
	}

	observed, ok := folded[strings.ToLower(path)]
	if !ok {
		return remoteOnlyDiff(remote, normRemote), nil
	}

	local, err := r.store.Read(observed)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return remoteOnlyDiff(remote, normRemote), nil
		}

		return nil, fmt.Errorf("reading %s: %w", observed, err)
	}

	normLocal := normalizeEOL(local)

	if normLocal == normRemote {
		return &Diff{
			Path:              path,
			Status:            StatusCaseConflictOnly,
			LocalContent:      local,
			RemoteContent:     remote.Content,
			RemoteHash:        remote.SHA,
			Match:             MatchCaseConflict,
			ObservedLocalPath: observed,
		}, nil
	}

	additions, deletions := countLineChanges(normLocal, normRemote)

	return &Diff{
		Path:              path,
		Status:            StatusRemoteModified,
		LocalContent:      local,
		RemoteContent:     remote.Content,
		RemoteHash:        remote.SHA,
		Additions:         additions,
		Deletions:         deletions,
		Match:             MatchCaseConflict,
		ObservedLocalPath: observed,
	}, nil
}

// unknownDiff builds the placeholder diff for a snapshot entry whose
// content fetch failed. Executors skip these.
func unknownDiff(remote RemoteFile, match MatchType) *Diff {
	return &Diff{
		Path:       remote.Path,
		Status:     StatusUnknown,
		RemoteHash: remote.SHA,
		Match:      match,
	}
}

// remoteOnlyDiff builds the diff for a remote document with no local
// counterpart.
func remoteOnlyDiff(remote RemoteFile, normContent string) *Diff {
	additions, deletions := countLineChanges("", normContent)

	return &Diff{
		Path:          remote.Path,
		Status:        StatusRemoteOnly,
		RemoteContent: remote.Content,
		RemoteHash:    remote.SHA,
		Additions:     additions,
		Deletions:     deletions,
		Match:         MatchNone,
	}
}
