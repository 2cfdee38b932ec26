package github

// Wire types for the Git Data endpoints. Only the fields the sync
// engine consumes are declared; everything else in the payloads is
// ignored on decode.

type refResponse struct {
	Ref    string    `json:"ref"`
	Object refObject `json:"object"`
}

type refObject struct {
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type treeResponse struct {
	SHA       string      `json:"sha"`
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type blobResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type createBlobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// shaResponse covers every create endpoint: blobs, trees, and commits
// all answer with the new object's hash.
type shaResponse struct {
	SHA string `json:"sha"`
}

type createTreeRequest struct {
	BaseTree string          `json:"base_tree,omitempty"`
	Tree     []treeWriteItem `json:"tree"`
}

// treeWriteItem is one row in a tree creation request. SHA is a pointer
// because the API distinguishes a present hash (write this blob at the
// path) from an explicit null (remove the path from the base tree);
// omitting the field entirely is not the same as null.
type treeWriteItem struct {
	Path string  `json:"path"`
	Mode string  `json:"mode"`
	Type string  `json:"type"`
	SHA  *string `json:"sha"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents,omitempty"`
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}
