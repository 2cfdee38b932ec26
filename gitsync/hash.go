package gitsync

import "github.com/go-git/go-git/v5/plumbing"

// BlobHash returns the Git blob object hash of content: the SHA-1 of
// "blob <length>\x00" followed by the content bytes, hex encoded. It
// matches the hashes the remote object store reports for its blobs, so
// equal hashes mean byte-identical content. The reconciler uses it only
// as a fast-path equality filter; a mismatch is always re-verified
// against the actual content.
func BlobHash(content string) string {
	return plumbing.ComputeHash(plumbing.BlobObject, []byte(content)).String()
}
