// Package github is a thin client for the GitHub Git Data REST API
// covering exactly the object operations the sync engine needs: ref
// resolution, recursive tree listing, blob reads, and the
// blob/tree/commit/ref write chain.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/notesync/gitsync"
	syncerrors "github.com/alexjbarnes/notesync/internal/errors"
)

// TransientError wraps an error that is likely temporary and safe to retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller may retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads on control endpoints
	// to prevent a misbehaving server from consuming unbounded memory.
	maxAPIResponseBytes = 1024 * 1024

	// maxBlobResponseBytes caps blob reads. Blob payloads carry the
	// whole file base64-encoded, so this is deliberately far above the
	// control-endpoint cap.
	maxBlobResponseBytes = 32 * 1024 * 1024

	// blobMode is the tree entry mode for a regular file.
	blobMode = "100644"

	// apiVersion is the GitHub REST API version pinned on every request.
	apiVersion = "2022-11-28"
)

// Config holds the repository coordinates and credentials for a client.
type Config struct {
	// APIURL is the API base, https://api.github.com for github.com and
	// the /api/v3 root for GitHub Enterprise.
	APIURL string
	Owner  string
	Repo   string
	Token  string
}

// Client talks to the GitHub Git Data API for a single repository. It
// implements gitsync.Remote.
type Client struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
	token      string
}

var _ gitsync.Remote = (*Client)(nil)

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the Authorization
// header from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client with the given http.Client. If
// httpClient is nil, a client with a 30-second timeout and same-host
// redirect policy is created.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(cfg.APIURL, "/"),
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		token:      cfg.Token,
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// do sends one API request and decodes a 2xx response into result.
// Non-2xx statuses are mapped onto the shared error taxonomy: 401/403
// become ErrAuthFailed, 404 ErrNotFound, 409 ErrEmptyRepository, rate
// limiting and 5xx become TransientError.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result interface{}, maxBytes int64) error {
	var payload io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request body: %w", err)
		}

		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, payload)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("Authorization", "Bearer "+c.token)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := fmt.Errorf("sending request to %s: %w", endpoint, err)
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return &TransientError{Err: wrapped}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(endpoint, resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w", endpoint, err)
		}
	}

	return nil
}

// statusError maps a non-2xx API response onto the error taxonomy. The
// API reports the reason in a "message" field; fall back to the raw
// body when the payload is not JSON.
func (c *Client) statusError(endpoint string, status int, body []byte) error {
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = sanitizeResponseBody(body)
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("github %s: %s: %w", endpoint, msg, syncerrors.ErrAuthFailed)

	case status == http.StatusForbidden:
		// 403 covers both bad credentials/scopes and rate limiting; only
		// the latter is worth retrying.
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return &TransientError{Err: fmt.Errorf("github %s (%d): %s", endpoint, status, msg)}
		}

		return fmt.Errorf("github %s: %s: %w", endpoint, msg, syncerrors.ErrAuthFailed)

	case status == http.StatusNotFound:
		return fmt.Errorf("github %s: %s: %w", endpoint, msg, syncerrors.ErrNotFound)

	case status == http.StatusConflict:
		// The tree endpoint answers 409 "Git Repository is empty" for a
		// repository with no commits.
		return fmt.Errorf("github %s: %s: %w", endpoint, msg, syncerrors.ErrEmptyRepository)

	case isTransientStatus(status):
		return &TransientError{Err: fmt.Errorf("github %s (%d): %s", endpoint, status, msg)}
	}

	return fmt.Errorf("github %s (%d): %s", endpoint, status, msg)
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

func (c *Client) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s/%s", c.owner, c.repo, suffix)
}

// BranchTip returns the commit hash the branch currently points at.
func (c *Client) BranchTip(ctx context.Context, branch string) (string, error) {
	var resp refResponse

	endpoint := c.repoPath("git/ref/heads/" + branch)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp, maxAPIResponseBytes); err != nil {
		return "", fmt.Errorf("resolving branch %s: %w", branch, err)
	}

	if resp.Object.SHA == "" {
		return "", fmt.Errorf("resolving branch %s: ref payload carries no object hash", branch)
	}

	return resp.Object.SHA, nil
}

// RecursiveTree lists every blob reachable from ref, which may be a
// branch name or a commit/tree hash. Sub-trees are flattened by the
// server; only blob rows are returned.
func (c *Client) RecursiveTree(ctx context.Context, ref string) (*gitsync.Tree, error) {
	var resp treeResponse

	endpoint := c.repoPath("git/trees/" + ref + "?recursive=1")
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp, maxBlobResponseBytes); err != nil {
		return nil, fmt.Errorf("listing tree %s: %w", ref, err)
	}

	tree := &gitsync.Tree{SHA: resp.SHA, Truncated: resp.Truncated}

	for _, entry := range resp.Tree {
		if entry.Type != "blob" {
			continue
		}

		tree.Entries = append(tree.Entries, gitsync.TreeEntry{Path: entry.Path, SHA: entry.SHA})
	}

	return tree, nil
}

// Blob returns the raw content of a blob by hash.
func (c *Client) Blob(ctx context.Context, sha string) ([]byte, error) {
	var resp blobResponse

	endpoint := c.repoPath("git/blobs/" + sha)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp, maxBlobResponseBytes); err != nil {
		return nil, fmt.Errorf("fetching blob %s: %w", sha, err)
	}

	switch resp.Encoding {
	case "base64":
		// The API wraps base64 payloads with newlines.
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decoding blob %s: %w", sha, err)
		}

		return raw, nil

	case "utf-8", "":
		return []byte(resp.Content), nil

	default:
		return nil, fmt.Errorf("fetching blob %s: unsupported encoding %q", sha, resp.Encoding)
	}
}

// CreateBlob stores content as a new blob and returns its hash. Content
// is sent base64-encoded so arbitrary bytes survive the JSON transport.
func (c *Client) CreateBlob(ctx context.Context, content []byte) (string, error) {
	req := createBlobRequest{
		Content:  base64.StdEncoding.EncodeToString(content),
		Encoding: "base64",
	}

	var resp shaResponse

	if err := c.do(ctx, http.MethodPost, c.repoPath("git/blobs"), req, &resp, maxAPIResponseBytes); err != nil {
		return "", fmt.Errorf("creating blob: %w", err)
	}

	return resp.SHA, nil
}

// CreateTree creates a tree layered on baseTree and returns its hash.
// An entry with a nil SHA removes the path from the base tree.
func (c *Client) CreateTree(ctx context.Context, baseTree string, entries []gitsync.TreeWrite) (string, error) {
	req := createTreeRequest{
		BaseTree: baseTree,
		Tree:     make([]treeWriteItem, 0, len(entries)),
	}

	for _, entry := range entries {
		req.Tree = append(req.Tree, treeWriteItem{
			Path: entry.Path,
			Mode: blobMode,
			Type: "blob",
			SHA:  entry.SHA,
		})
	}

	var resp shaResponse

	if err := c.do(ctx, http.MethodPost, c.repoPath("git/trees"), req, &resp, maxAPIResponseBytes); err != nil {
		return "", fmt.Errorf("creating tree: %w", err)
	}

	return resp.SHA, nil
}

// CreateCommit creates a commit object referencing tree with parent as
// its sole parent and returns its hash.
func (c *Client) CreateCommit(ctx context.Context, tree, parent, message string) (string, error) {
	req := createCommitRequest{Message: message, Tree: tree}
	if parent != "" {
		req.Parents = []string{parent}
	}

	var resp shaResponse

	if err := c.do(ctx, http.MethodPost, c.repoPath("git/commits"), req, &resp, maxAPIResponseBytes); err != nil {
		return "", fmt.Errorf("creating commit: %w", err)
	}

	return resp.SHA, nil
}

// UpdateRef fast-forwards the branch to the given commit hash. A
// concurrent non-fast-forward update surfaces as a plain error, not as
// not-found.
func (c *Client) UpdateRef(ctx context.Context, branch, sha string) error {
	req := updateRefRequest{SHA: sha, Force: false}

	endpoint := c.repoPath("git/refs/heads/" + branch)
	if err := c.do(ctx, http.MethodPatch, endpoint, req, nil, maxAPIResponseBytes); err != nil {
		return fmt.Errorf("updating ref %s: %w", branch, err)
	}

	return nil
}
