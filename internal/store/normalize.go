package store

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath normalizes a store-relative path. It converts OS-native
// path separators to forward slashes, replaces non-breaking spaces with
// regular spaces, collapses repeated slashes, trims leading/trailing
// slashes and "./" prefixes, and applies Unicode NFC normalization.
// Call this on every path entering the system: walker output, watcher
// events, and remote tree entries.
func NormalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, " ", " ")
	path = strings.ReplaceAll(path, " ", " ")

	// Collapse multiple slashes and trim leading/trailing.
	var b strings.Builder

	prevSlash := false

	for _, r := range path {
		if r == '/' {
			if prevSlash {
				continue
			}

			prevSlash = true
		} else {
			prevSlash = false
		}

		b.WriteRune(r)
	}

	path = strings.Trim(b.String(), "/")
	path = strings.TrimPrefix(path, "./")

	if path == "." {
		path = ""
	}

	return norm.NFC.String(path)
}
