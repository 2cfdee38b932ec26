package e2e_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/alexjbarnes/notesync/gitsync"
	"github.com/alexjbarnes/notesync/internal/bridge"
	"github.com/alexjbarnes/notesync/internal/controller"
	"github.com/alexjbarnes/notesync/internal/github"
	"github.com/alexjbarnes/notesync/internal/oracle"
	"github.com/alexjbarnes/notesync/internal/store"
)

const (
	testToken  = "e2e-test-token"
	testBranch = "main"
	testDevice = "e2e-box"
)

// harness holds the full e2e stack: a notes directory with a local git
// repository, an in-memory Git Data API, the wired sync session, and
// the bridge HTTP server in front of it.
type harness struct {
	NotesDir string
	GitHub   *fakeGitHub
	Session  *controller.Session
	URL      string
	Client   *http.Client
}

// newHarness builds the stack with one shared document on both sides
// and one remote-only document:
//
//	local:  notes/alpha.md (committed as the git baseline)
//	remote: notes/alpha.md (same content), notes/gamma.md
//
// The first reconciliation therefore reports exactly one diff, gamma as
// remote-only.
func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	seedLocal(t, dir, map[string]string{
		"notes/alpha.md": "# Alpha\n\nshared\n",
	})

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitAll(t, repo, "baseline")

	fake := newFakeGitHub(testToken)
	fake.seedBranch(t, testBranch, map[string]string{
		"notes/alpha.md": "# Alpha\n\nshared\n",
		"notes/gamma.md": "# Gamma\n\nremote only\n",
	})

	api := httptest.NewServer(fake.handler())
	t.Cleanup(api.Close)

	logger := slog.New(slog.DiscardHandler)

	st, err := store.New(dir, logger)
	require.NoError(t, err)

	remote := github.NewClient(github.Config{
		APIURL: api.URL,
		Owner:  "tester",
		Repo:   "notes",
		Token:  testToken,
	}, nil)

	branches := []string{testBranch, "master"}

	fetcher, err := gitsync.NewFetcher(remote, branches, st.Tracked, logger)
	require.NoError(t, err)

	committer := oracle.NewCommitter(st, testDevice, logger)

	session := controller.New(controller.Config{
		Changes:   oracle.New(st, logger),
		Snapshots: fetcher,
		Reconcile: gitsync.NewReconciler(st, logger),
		Pull:      gitsync.NewPullExecutor(st, committer, testDevice, logger),
		Push:      gitsync.NewPushExecutor(remote, committer, branches, testDevice, logger),
		Logger:    logger,
	})

	ts := httptest.NewServer(bridge.NewMux(bridge.Config{Session: session, Logger: logger}))
	t.Cleanup(ts.Close)

	return &harness{
		NotesDir: dir,
		GitHub:   fake,
		Session:  session,
		URL:      ts.URL,
		Client:   ts.Client(),
	}
}

// diffList is the bridge's diff payload shape.
type diffList struct {
	Diffs []gitsync.Diff `json:"diffs"`
	Count int            `json:"count"`
}

// reconcile runs a reconciliation through the bridge and returns the
// resulting diff list.
func (h *harness) reconcile(t *testing.T) []gitsync.Diff {
	t.Helper()

	var out diffList
	require.Equal(t, http.StatusOK, h.postJSON(t, "/api/reconcile", nil, &out))

	return out.Diffs
}

// getJSON performs a GET and decodes the body into out when non-nil.
// Returns the response status code.
func (h *harness) getJSON(t *testing.T, path string, out any) int {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), "GET", h.URL+path, nil)
	require.NoError(t, err)

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

// postJSON performs a POST with an optional JSON body and decodes the
// response into out when non-nil. Returns the response status code.
func (h *harness) postJSON(t *testing.T, path string, body, out any) int {
	t.Helper()

	var payload *bytes.Reader

	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(b)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(t.Context(), "POST", h.URL+path, payload)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

// selection builds the request body selecting the given diff paths.
func selection(paths ...string) map[string][]string {
	return map[string][]string{"paths": paths}
}

// seedLocal writes files into the notes directory.
func seedLocal(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func commitAll(t *testing.T, repo *git.Repository, message string) {
	t.Helper()

	wt, err := repo.Worktree()
	require.NoError(t, err)

	_, err = wt.Add(".")
	require.NoError(t, err)

	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

// localHeadMessage returns the message of the notes repository's HEAD
// commit.
func localHeadMessage(t *testing.T, dir string) string {
	t.Helper()

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)

	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)

	return commit.Message
}
