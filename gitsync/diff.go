// Package gitsync reconciles a local tree of Markdown documents with a
// remote repository exposed through the Git Data API (blobs, trees,
// commits, refs). The Reconciler classifies every document into a sync
// status; the pull and push executors apply a classified diff list to
// the local store or build a new remote commit from it.
package gitsync

import "strings"

// Status classifies the relationship between the local and remote copy
// of a document after reconciliation.
type Status string

const (
	// StatusAdded: the document exists locally and has no remote
	// counterpart.
	StatusAdded Status = "added"

	// StatusModified: the document was flagged changed locally and its
	// content differs from the remote copy.
	StatusModified Status = "modified"

	// StatusRemoteModified: the remote copy differs from an unflagged
	// local document.
	StatusRemoteModified Status = "remote-modified"

	// StatusRemoteOnly: the document exists remotely with no local
	// counterpart. Pushing it deletes the remote copy, pulling it
	// creates the local one.
	StatusRemoteOnly Status = "remote-only"

	// StatusCaseConflictOnly: local and remote paths differ only in
	// letter case and the content is identical.
	StatusCaseConflictOnly Status = "case-conflict-only"

	// StatusDeleted: reserved terminal status. Reconciliation maps a
	// locally deleted, remotely present document to StatusRemoteOnly
	// instead of emitting this.
	StatusDeleted Status = "deleted"

	// StatusUnknown: the remote content could not be fetched, so the
	// document cannot be classified. Executors skip these.
	StatusUnknown Status = "unknown"
)

// MatchType records how a remote path was matched against the local tree.
type MatchType string

const (
	MatchExact        MatchType = "exact"
	MatchCaseConflict MatchType = "case-conflict"
	MatchNone         MatchType = "none"
)

// Diff describes one document whose local and remote copies disagree.
// Path is the normalized remote-side path for remote-originated statuses
// and the local path otherwise. At most one Diff per path is produced
// per reconciliation pass.
type Diff struct {
	Path   string `json:"path"`
	Status Status `json:"status"`

	// Full text of each side. Empty when the side is absent.
	LocalContent  string `json:"localContent"`
	RemoteContent string `json:"remoteContent"`

	// RemoteHash is the Git blob hash of the remote copy, empty when
	// the document does not exist remotely.
	RemoteHash string `json:"remoteHash,omitempty"`

	// Additions and Deletions are a positional line-count heuristic for
	// display. They never influence classification.
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`

	// Match records how the remote path was resolved against the local
	// tree. ObservedLocalPath is set only for case-conflict matches and
	// holds the local path with its on-disk casing.
	Match             MatchType `json:"match"`
	ObservedLocalPath string    `json:"observedLocalPath,omitempty"`
}

// normalizeEOL converts CRLF line endings to LF. Content equality is
// always judged on the normalized form so that files differing only in
// line endings never produce a diff.
func normalizeEOL(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// splitLines splits content into lines. The empty string has no lines;
// a trailing newline introduces a final empty line, matching how the
// displayed line counts are derived.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}

// lineCount returns the number of lines in content per splitLines.
func lineCount(s string) int {
	return len(splitLines(s))
}

// countLineChanges computes the positional line-count heuristic between
// the local and remote side of a document. Lines are aligned by index:
// a local line past the end of the remote side counts as an addition, a
// remote line past the end of the local side counts as a deletion, and
// a differing shared line counts as an addition.
func countLineChanges(local, remote string) (additions, deletions int) {
	localLines := splitLines(local)
	remoteLines := splitLines(remote)

	for i := 0; i < len(localLines) || i < len(remoteLines); i++ {
		switch {
		case i >= len(remoteLines):
			additions++
		case i >= len(localLines):
			deletions++
		case localLines[i] != remoteLines[i]:
			additions++
		}
	}

	return additions, deletions
}
