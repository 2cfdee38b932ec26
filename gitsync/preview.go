package gitsync

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Preview renders a unified-style line diff from the remote side of d
// to its local side, for display only. Lines gaining locally are
// prefixed "+", lines present only remotely "-". The classification in
// d is not consulted or affected.
func Preview(d Diff) string {
	dmp := diffmatchpatch.New()

	// Line-mode diff: map each line to a rune, diff the rune strings,
	// then expand back. Keeps the output line-oriented instead of
	// character-oriented.
	remoteRunes, localRunes, lines := dmp.DiffLinesToRunes(d.RemoteContent, d.LocalContent)
	diffs := dmp.DiffMainRunes(remoteRunes, localRunes, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var b strings.Builder

	for _, df := range diffs {
		if df.Text == "" {
			continue
		}

		prefix := " "

		switch df.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}

		for _, line := range strings.Split(strings.TrimSuffix(df.Text, "\n"), "\n") {
			b.WriteString(prefix)
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}
