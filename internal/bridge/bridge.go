// Package bridge exposes the sync session over a loopback HTTP API:
// JSON endpoints for status, diffs, and the three sync operations, plus
// a websocket feed of session notices. The bridge carries no
// authentication of its own and must only be bound to loopback.
package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/alexjbarnes/notesync/gitsync"
	"github.com/alexjbarnes/notesync/internal/controller"
	syncerrors "github.com/alexjbarnes/notesync/internal/errors"
)

// Config holds dependencies for building the bridge mux.
type Config struct {
	Session *controller.Session
	Logger  *slog.Logger
}

// NewMux builds the bridge HTTP mux.
func NewMux(cfg Config) *http.ServeMux {
	b := &bridge{session: cfg.Session, logger: cfg.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", b.handleStatus)
	mux.HandleFunc("GET /api/diffs", b.handleDiffs)
	mux.HandleFunc("GET /api/diffs/preview", b.handlePreview)
	mux.HandleFunc("POST /api/reconcile", b.handleReconcile)
	mux.HandleFunc("POST /api/pull", b.handlePull)
	mux.HandleFunc("POST /api/push", b.handlePush)
	mux.HandleFunc("GET /api/events", b.handleEvents)

	return mux
}

type bridge struct {
	session *controller.Session
	logger  *slog.Logger
}

// runRequest selects a subset of cached diffs by path. Empty or absent
// means all.
type runRequest struct {
	Paths []string `json:"paths,omitempty"`
}

type diffsResponse struct {
	Diffs []gitsync.Diff `json:"diffs"`
	Count int            `json:"count"`
}

type previewResponse struct {
	Path    string         `json:"path"`
	Status  gitsync.Status `json:"status"`
	Preview string         `json:"preview"`
}

func (b *bridge) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.session.Status())
}

func (b *bridge) handleDiffs(w http.ResponseWriter, _ *http.Request) {
	diffs := b.session.Diffs()
	if diffs == nil {
		diffs = []gitsync.Diff{}
	}

	writeJSON(w, http.StatusOK, diffsResponse{Diffs: diffs, Count: len(diffs)})
}

func (b *bridge) handlePreview(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	d, ok := b.session.Diff(path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no cached diff for path "+path)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Path:    d.Path,
		Status:  d.Status,
		Preview: gitsync.Preview(d),
	})
}

func (b *bridge) handleReconcile(w http.ResponseWriter, r *http.Request) {
	diffs, err := b.session.Reconcile(r.Context())
	if err != nil {
		b.writeOperationError(w, "reconcile", err)
		return
	}

	if diffs == nil {
		diffs = []gitsync.Diff{}
	}

	writeJSON(w, http.StatusOK, diffsResponse{Diffs: diffs, Count: len(diffs)})
}

func (b *bridge) handlePull(w http.ResponseWriter, r *http.Request) {
	paths, ok := b.decodeRun(w, r)
	if !ok {
		return
	}

	res, err := b.session.Pull(r.Context(), paths)
	if err != nil {
		b.writeOperationError(w, "pull", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (b *bridge) handlePush(w http.ResponseWriter, r *http.Request) {
	paths, ok := b.decodeRun(w, r)
	if !ok {
		return
	}

	res, err := b.session.Push(r.Context(), paths)
	if err != nil {
		b.writeOperationError(w, "push", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleEvents upgrades to a websocket and streams session notices as
// JSON messages until the client goes away.
func (b *bridge) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	notices, cancel := b.session.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "bye")
			return

		case n, ok := <-notices:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "bye")
				return
			}

			if err := wsjson.Write(ctx, conn, n); err != nil {
				b.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// decodeRun parses an optional JSON body carrying a path selection. An
// empty body selects everything.
func (b *bridge) decodeRun(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req runRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}

	return req.Paths, true
}

func (b *bridge) writeOperationError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, syncerrors.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, syncerrors.ErrNoDiffs):
		status = http.StatusBadRequest
	}

	b.logger.Warn("bridge operation failed",
		slog.String("operation", op),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
