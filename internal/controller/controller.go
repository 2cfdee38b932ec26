// Package controller owns a sync session: the cached diff list from the
// last reconciliation, the busy flag that serializes operations, and
// the notice feed the bridge and MCP surfaces consume. All session
// methods are safe for concurrent use.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/notesync/gitsync"
	syncerrors "github.com/alexjbarnes/notesync/internal/errors"
)

// ChangeSource is the subset of the change oracle the session needs.
type ChangeSource interface {
	Changes(ctx context.Context) ([]gitsync.Change, error)
}

// SnapshotSource is the subset of the remote fetcher the session needs.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*gitsync.Snapshot, error)
}

// Reconciler classifies local changes against a remote snapshot.
type Reconciler interface {
	Reconcile(ctx context.Context, changes []gitsync.Change, snap *gitsync.Snapshot) ([]gitsync.Diff, error)
}

// PullRunner applies a diff list to the local store.
type PullRunner interface {
	Apply(ctx context.Context, diffs []gitsync.Diff) (*gitsync.PullResult, error)
}

// PushRunner builds a remote commit from a diff list.
type PushRunner interface {
	Apply(ctx context.Context, diffs []gitsync.Diff) (*gitsync.PushResult, error)
}

// Config carries the session's collaborators.
type Config struct {
	Changes   ChangeSource
	Snapshots SnapshotSource
	Reconcile Reconciler
	Pull      PullRunner
	Push      PushRunner
	Logger    *slog.Logger
}

// Status is a point-in-time summary of the session.
type Status struct {
	// Busy reports whether an operation is currently running.
	Busy bool `json:"busy"`

	// Reconciled reports whether a reconciliation has completed and its
	// diff list is cached.
	Reconciled bool `json:"reconciled"`

	// Stale reports whether local files changed after the cached
	// reconciliation, meaning the diff list may be outdated.
	Stale bool `json:"stale"`

	DiffCount     int        `json:"diffCount"`
	LastReconcile *time.Time `json:"lastReconcile,omitempty"`
}

// Session serializes sync operations and caches their results. Pull and
// push consume the diff list produced by the most recent Reconcile;
// running them without one fails with ErrNoDiffs, and overlapping
// operations fail with ErrBusy instead of queueing.
type Session struct {
	changes   ChangeSource
	snapshots SnapshotSource
	reconcile Reconciler
	pull      PullRunner
	push      PushRunner
	logger    *slog.Logger

	notices *noticeHub

	mu         sync.Mutex
	busy       bool
	reconciled bool
	stale      bool
	diffs      []gitsync.Diff
	lastRun    time.Time
}

// New creates a Session.
func New(cfg Config) *Session {
	return &Session{
		changes:   cfg.Changes,
		snapshots: cfg.Snapshots,
		reconcile: cfg.Reconcile,
		pull:      cfg.Pull,
		push:      cfg.Push,
		logger:    cfg.Logger,
		notices:   newNoticeHub(),
	}
}

// Reconcile runs a full reconciliation pass and caches the resulting
// diff list for later pull and push calls. The returned slice is a copy.
func (s *Session) Reconcile(ctx context.Context) ([]gitsync.Diff, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	changes, err := s.changes.Changes(ctx)
	if err != nil {
		s.fail("reconcile", err)
		return nil, err
	}

	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		s.fail("reconcile", err)
		return nil, err
	}

	diffs, err := s.reconcile.Reconcile(ctx, changes, snap)
	if err != nil {
		s.fail("reconcile", err)
		return nil, err
	}

	s.mu.Lock()
	s.diffs = diffs
	s.reconciled = true
	s.stale = false
	s.lastRun = time.Now()
	s.mu.Unlock()

	s.publish(NoticeReconciled, fmt.Sprintf("reconciled: %d file(s) differ", len(diffs)))

	return copyDiffs(diffs), nil
}

// Pull applies cached diffs to the local store. paths selects a subset
// by document path; empty means all. Applied diffs leave the cache and
// the session becomes stale, so the next decision starts from a fresh
// reconciliation.
func (s *Session) Pull(ctx context.Context, paths []string) (*gitsync.PullResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	selected, err := s.take(paths)
	if err != nil {
		return nil, err
	}

	res, err := s.pull.Apply(ctx, selected)
	s.consume(selected)

	if res != nil {
		for _, notice := range res.Notices {
			s.publish(NoticeConflict, notice)
		}
	}

	if err != nil {
		s.fail("pull", err)
		return res, err
	}

	s.publish(NoticePulled, fmt.Sprintf("pulled: %d file(s) written", len(res.Written)))

	return res, nil
}

// Push builds a remote commit from cached diffs. paths selects a subset
// by document path; empty means all. Applied diffs leave the cache and
// the session becomes stale.
func (s *Session) Push(ctx context.Context, paths []string) (*gitsync.PushResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.end()

	selected, err := s.take(paths)
	if err != nil {
		return nil, err
	}

	res, err := s.push.Apply(ctx, selected)
	s.consume(selected)

	if err != nil {
		s.fail("push", err)
		return res, err
	}

	s.publish(NoticePushed,
		fmt.Sprintf("pushed: %d file(s) updated, %d deleted", len(res.Pushed), len(res.Deleted)))

	return res, nil
}

// Diffs returns a copy of the cached diff list.
func (s *Session) Diffs() []gitsync.Diff {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyDiffs(s.diffs)
}

// Diff returns the cached diff for a path.
func (s *Session) Diff(path string) (gitsync.Diff, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.diffs {
		if d.Path == path {
			return d, true
		}
	}

	return gitsync.Diff{}, false
}

// Status reports the session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Busy:       s.busy,
		Reconciled: s.reconciled,
		Stale:      s.stale,
		DiffCount:  len(s.diffs),
	}
	if !s.lastRun.IsZero() {
		t := s.lastRun
		st.LastReconcile = &t
	}

	return st
}

// MarkStale records that local documents changed after the cached
// reconciliation. The watcher calls this with its settled batches.
func (s *Session) MarkStale(paths []string) {
	if len(paths) == 0 {
		return
	}

	s.mu.Lock()
	if s.reconciled {
		s.stale = true
	}
	s.mu.Unlock()

	s.publish(NoticeLocalChange, fmt.Sprintf("%d local file(s) changed", len(paths)))
}

// Subscribe returns a channel of session notices and a cancel function.
// Slow subscribers lose notices rather than blocking operations.
func (s *Session) Subscribe() (<-chan Notice, func()) {
	return s.notices.subscribe()
}

// begin claims the session for one operation.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return syncerrors.ErrBusy
	}

	s.busy = true

	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// take resolves a path selection against the cached diff list, in cache
// order. Empty paths selects everything.
func (s *Session) take(paths []string) ([]gitsync.Diff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reconciled {
		return nil, syncerrors.ErrNoDiffs
	}

	if len(paths) == 0 {
		return copyDiffs(s.diffs), nil
	}

	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
	}

	var selected []gitsync.Diff
	for _, d := range s.diffs {
		if wanted[d.Path] {
			selected = append(selected, d)
			delete(wanted, d.Path)
		}
	}

	for p := range wanted {
		return nil, fmt.Errorf("no cached diff for path %s", p)
	}

	return selected, nil
}

// consume drops applied diffs from the cache and marks the session
// stale: whatever an executor touched, the cached classification no
// longer reflects reality.
func (s *Session) consume(applied []gitsync.Diff) {
	if len(applied) == 0 {
		return
	}

	drop := make(map[string]bool, len(applied))
	for _, d := range applied {
		drop[d.Path] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.diffs[:0]
	for _, d := range s.diffs {
		if !drop[d.Path] {
			kept = append(kept, d)
		}
	}

	s.diffs = kept
	s.stale = true
}

func (s *Session) fail(op string, err error) {
	s.publish(NoticeError, fmt.Sprintf("%s failed: %v", op, err))
}

func (s *Session) publish(kind NoticeKind, message string) {
	s.notices.publish(Notice{Time: time.Now(), Kind: kind, Message: message})
	s.logger.Debug("session notice",
		slog.String("kind", string(kind)),
		slog.String("message", message),
	)
}

func copyDiffs(diffs []gitsync.Diff) []gitsync.Diff {
	if diffs == nil {
		return nil
	}

	out := make([]gitsync.Diff, len(diffs))
	copy(out, diffs)

	return out
}
