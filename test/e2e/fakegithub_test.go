package e2e_test

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/notesync/gitsync"
)

// fakeCommit is one commit object in the fake object store.
type fakeCommit struct {
	Tree    string
	Parent  string
	Message string
}

// fakeGitHub is an in-memory Git Data API: content-addressed blobs,
// path-to-blob trees, commits, and branch refs, served over the same
// endpoints and wire shapes as the production API. Blob hashes are real
// Git blob hashes so the reconciler's hash fast path works across
// push/fetch cycles.
type fakeGitHub struct {
	mu      sync.Mutex
	token   string
	seq     int
	blobs   map[string][]byte
	trees   map[string]map[string]string
	commits map[string]fakeCommit
	refs    map[string]string
}

func newFakeGitHub(token string) *fakeGitHub {
	return &fakeGitHub{
		token:   token,
		blobs:   map[string][]byte{},
		trees:   map[string]map[string]string{},
		commits: map[string]fakeCommit{},
		refs:    map[string]string{},
	}
}

// seedBranch commits the given files on top of the branch's current
// tree (creating the branch if needed) and advances the ref.
func (f *fakeGitHub) seedBranch(t *testing.T, branch string, files map[string]string) {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	tree := map[string]string{}
	parent := ""

	if tip, ok := f.refs[branch]; ok {
		parent = tip
		for p, sha := range f.trees[f.commits[tip].Tree] {
			tree[p] = sha
		}
	}

	for p, content := range files {
		sha := gitsync.BlobHash(content)
		f.blobs[sha] = []byte(content)
		tree[p] = sha
	}

	treeSHA := f.storeTree(tree)
	f.refs[branch] = f.storeCommit(fakeCommit{Tree: treeSHA, Parent: parent, Message: "seed"})
}

// branchFiles returns path -> content for every blob reachable from the
// branch tip.
func (f *fakeGitHub) branchFiles(t *testing.T, branch string) map[string]string {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	tip, ok := f.refs[branch]
	require.True(t, ok, "branch %s does not exist", branch)

	files := map[string]string{}
	for p, sha := range f.trees[f.commits[tip].Tree] {
		files[p] = string(f.blobs[sha])
	}

	return files
}

// headMessage returns the commit message at the branch tip.
func (f *fakeGitHub) headMessage(t *testing.T, branch string) string {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	tip, ok := f.refs[branch]
	require.True(t, ok, "branch %s does not exist", branch)

	return f.commits[tip].Message
}

// requireToken changes the token the fake accepts, for auth failure
// tests.
func (f *fakeGitHub) requireToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.token = token
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/ref/heads/{branch...}", f.auth(f.getRef))
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/trees/{ref}", f.auth(f.getTree))
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/blobs/{sha}", f.auth(f.getBlob))
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/blobs", f.auth(f.createBlob))
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/trees", f.auth(f.createTree))
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/commits", f.auth(f.createCommit))
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/git/refs/heads/{branch...}", f.auth(f.updateRef))

	return mux
}

func (f *fakeGitHub) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		want := "Bearer " + f.token
		f.mu.Unlock()

		if r.Header.Get("Authorization") != want {
			writeAPIJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}

		next(w, r)
	}
}

func (f *fakeGitHub) getRef(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")

	f.mu.Lock()
	tip, ok := f.refs[branch]
	f.mu.Unlock()

	if !ok {
		writeAPIJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	writeAPIJSON(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]string{"type": "commit", "sha": tip},
	})
}

func (f *fakeGitHub) getTree(w http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")

	f.mu.Lock()
	defer f.mu.Unlock()

	treeSHA, ok := f.resolveTree(ref)
	if !ok {
		writeAPIJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	entries := f.trees[treeSHA]

	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	rows := make([]map[string]any, 0, len(paths))
	for _, p := range paths {
		rows = append(rows, map[string]any{
			"path": p,
			"mode": "100644",
			"type": "blob",
			"sha":  entries[p],
		})
	}

	writeAPIJSON(w, http.StatusOK, map[string]any{
		"sha":       treeSHA,
		"tree":      rows,
		"truncated": false,
	})
}

func (f *fakeGitHub) getBlob(w http.ResponseWriter, r *http.Request) {
	sha := r.PathValue("sha")

	f.mu.Lock()
	content, ok := f.blobs[sha]
	f.mu.Unlock()

	if !ok {
		writeAPIJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	writeAPIJSON(w, http.StatusOK, map[string]string{
		"sha":      sha,
		"content":  base64.StdEncoding.EncodeToString(content),
		"encoding": "base64",
	})
}

func (f *fakeGitHub) createBlob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}

	if !decodeAPIBody(w, r, &req) {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeAPIJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid base64 content"})
		return
	}

	sha := gitsync.BlobHash(string(raw))

	f.mu.Lock()
	f.blobs[sha] = raw
	f.mu.Unlock()

	writeAPIJSON(w, http.StatusCreated, map[string]string{"sha": sha})
}

func (f *fakeGitHub) createTree(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseTree string `json:"base_tree"`
		Tree     []struct {
			Path string  `json:"path"`
			SHA  *string `json:"sha"`
		} `json:"tree"`
	}

	if !decodeAPIBody(w, r, &req) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries := map[string]string{}

	if req.BaseTree != "" {
		base, ok := f.trees[req.BaseTree]
		if !ok {
			writeAPIJSON(w, http.StatusNotFound, map[string]string{"message": "Base tree not found"})
			return
		}

		for p, sha := range base {
			entries[p] = sha
		}
	}

	for _, item := range req.Tree {
		if item.SHA == nil {
			delete(entries, item.Path)
			continue
		}

		if _, ok := f.blobs[*item.SHA]; !ok {
			writeAPIJSON(w, http.StatusNotFound, map[string]string{"message": "Blob not found: " + *item.SHA})
			return
		}

		entries[item.Path] = *item.SHA
	}

	writeAPIJSON(w, http.StatusCreated, map[string]string{"sha": f.storeTree(entries)})
}

func (f *fakeGitHub) createCommit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string   `json:"message"`
		Tree    string   `json:"tree"`
		Parents []string `json:"parents"`
	}

	if !decodeAPIBody(w, r, &req) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.trees[req.Tree]; !ok {
		writeAPIJSON(w, http.StatusNotFound, map[string]string{"message": "Tree not found"})
		return
	}

	parent := ""
	if len(req.Parents) > 0 {
		parent = req.Parents[0]
	}

	sha := f.storeCommit(fakeCommit{Tree: req.Tree, Parent: parent, Message: req.Message})
	writeAPIJSON(w, http.StatusCreated, map[string]string{"sha": sha})
}

func (f *fakeGitHub) updateRef(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")

	var req struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}

	if !decodeAPIBody(w, r, &req) {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tip, ok := f.refs[branch]
	if !ok {
		writeAPIJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	if _, ok := f.commits[req.SHA]; !ok {
		writeAPIJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Object does not exist"})
		return
	}

	if !req.Force && !f.isAncestor(tip, req.SHA) {
		writeAPIJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Update is not a fast forward"})
		return
	}

	f.refs[branch] = req.SHA

	writeAPIJSON(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]string{"type": "commit", "sha": req.SHA},
	})
}

// resolveTree maps a branch name, commit hash, or tree hash to a tree
// hash. Callers hold the lock.
func (f *fakeGitHub) resolveTree(ref string) (string, bool) {
	if tip, ok := f.refs[ref]; ok {
		return f.commits[tip].Tree, true
	}

	if c, ok := f.commits[ref]; ok {
		return c.Tree, true
	}

	if _, ok := f.trees[ref]; ok {
		return ref, true
	}

	return "", false
}

// isAncestor reports whether old is reachable from tip via parent
// links. Callers hold the lock.
func (f *fakeGitHub) isAncestor(old, tip string) bool {
	for sha := tip; sha != ""; sha = f.commits[sha].Parent {
		if sha == old {
			return true
		}
	}

	return false
}

// storeTree stores a tree under a hash of its sorted entries. Callers
// hold the lock.
func (f *fakeGitHub) storeTree(entries map[string]string) string {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		parts = append(parts, p+":"+entries[p])
	}

	sha := objectID("tree", parts...)
	f.trees[sha] = entries

	return sha
}

// storeCommit stores a commit under a fresh hash. A sequence number
// keeps re-created commits with identical fields distinct. Callers hold
// the lock.
func (f *fakeGitHub) storeCommit(c fakeCommit) string {
	f.seq++
	sha := objectID("commit", c.Tree, c.Parent, c.Message, strconv.Itoa(f.seq))
	f.commits[sha] = c

	return sha
}

func objectID(kind string, parts ...string) string {
	h := sha1.New()
	io.WriteString(h, kind)

	for _, p := range parts {
		io.WriteString(h, "\x00"+p)
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeAPIJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeAPIBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIJSON(w, http.StatusBadRequest, map[string]string{"message": "Problems parsing JSON"})
		return false
	}

	return true
}
