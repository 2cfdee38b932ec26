package gitsync

import (
	"fmt"
	"strings"
)

// Message builds the sync commit message for n changed files. A
// non-blank label (typically the device name) is inserted after the
// "sync:" prefix:
//
//	Message(3, "laptop") == "sync: laptop updated 3 files"
//	Message(1, "")       == "sync: updated 1 file"
func Message(n int, label string) string {
	noun := "files"
	if n == 1 {
		noun = "file"
	}

	label = strings.TrimSpace(label)
	if label != "" {
		return fmt.Sprintf("sync: %s updated %d %s", label, n, noun)
	}

	return fmt.Sprintf("sync: updated %d %s", n, noun)
}
