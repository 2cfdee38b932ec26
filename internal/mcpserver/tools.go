// Package mcpserver registers MCP tools that expose sync operations.
// It adapts the controller session to the MCP SDK's tool handler
// interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexjbarnes/notesync/gitsync"
	"github.com/alexjbarnes/notesync/internal/controller"
)

// RegisterTools adds all sync tools to the given MCP server.
func RegisterTools(server *mcp.Server, session *controller.Session) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Report the sync session state: whether an operation is running, whether a reconciliation result is cached, its staleness, and the cached diff count. Cheap; call freely.",
	}, statusHandler(session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_reconcile",
		Description: "Run a reconciliation pass: detect local changes, fetch the remote snapshot, and classify every file where the two sides differ. Returns one entry per differing file. Run this before sync_pull or sync_push.",
	}, reconcileHandler(session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_pull",
		Description: "Apply remote content to the local notes from the cached reconciliation. Optional paths select a subset. Case conflicts are materialized as sibling files instead of overwriting either side.",
	}, pullHandler(session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_push",
		Description: "Build a commit from local content in the cached reconciliation and advance the remote branch to it. Optional paths select a subset. Files that only exist remotely are deleted from the remote.",
	}, pushHandler(session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_diff_preview",
		Description: "Render a line diff from the remote to the local version of one file in the cached reconciliation. Lines gained locally are prefixed '+', lines only present remotely '-'.",
	}, previewHandler(session))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// StatusInput has no parameters.
type StatusInput struct{}

// ReconcileInput has no parameters.
type ReconcileInput struct{}

// RunInput selects cached diffs for sync_pull and sync_push.
type RunInput struct {
	Paths []string `json:"paths,omitempty" jsonschema:"file paths to apply, empty for all cached diffs"`
}

// PreviewInput holds parameters for sync_diff_preview.
type PreviewInput struct {
	Path string `json:"path" jsonschema:"required,file path from the cached diff list"`
}

// --- Output types ---

// DiffEntry is a compact view of one cached diff. File contents stay
// out of the listing; sync_diff_preview renders them on demand.
type DiffEntry struct {
	Path              string         `json:"path"`
	Status            gitsync.Status `json:"status"`
	Additions         int            `json:"additions"`
	Deletions         int            `json:"deletions"`
	ObservedLocalPath string         `json:"observed_local_path,omitempty"`
}

// ReconcileResult summarizes a reconciliation pass.
type ReconcileResult struct {
	TotalDiffs int         `json:"total_diffs"`
	Diffs      []DiffEntry `json:"diffs"`
}

// PreviewResult is the rendered diff for one file.
type PreviewResult struct {
	Path    string         `json:"path"`
	Status  gitsync.Status `json:"status"`
	Preview string         `json:"preview"`
}

// --- Handlers ---

func statusHandler(session *controller.Session) mcp.ToolHandlerFor[StatusInput, controller.Status] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, controller.Status, error) {
		st := session.Status()
		return textResult(st), st, nil
	}
}

func reconcileHandler(session *controller.Session) mcp.ToolHandlerFor[ReconcileInput, ReconcileResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ReconcileInput) (*mcp.CallToolResult, ReconcileResult, error) {
		diffs, err := session.Reconcile(ctx)
		if err != nil {
			return nil, ReconcileResult{}, err
		}

		result := summarize(diffs)

		return textResult(result), result, nil
	}
}

func pullHandler(session *controller.Session) mcp.ToolHandlerFor[RunInput, *gitsync.PullResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RunInput) (*mcp.CallToolResult, *gitsync.PullResult, error) {
		result, err := session.Pull(ctx, input.Paths)
		if err != nil {
			return nil, nil, err
		}

		return textResult(result), result, nil
	}
}

func pushHandler(session *controller.Session) mcp.ToolHandlerFor[RunInput, *gitsync.PushResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RunInput) (*mcp.CallToolResult, *gitsync.PushResult, error) {
		result, err := session.Push(ctx, input.Paths)
		if err != nil {
			return nil, nil, err
		}

		return textResult(result), result, nil
	}
}

func previewHandler(session *controller.Session) mcp.ToolHandlerFor[PreviewInput, PreviewResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input PreviewInput) (*mcp.CallToolResult, PreviewResult, error) {
		d, ok := session.Diff(input.Path)
		if !ok {
			return nil, PreviewResult{}, fmt.Errorf("no cached diff for path %s, run sync_reconcile first", input.Path)
		}

		result := PreviewResult{
			Path:    d.Path,
			Status:  d.Status,
			Preview: gitsync.Preview(d),
		}

		return textResult(result), result, nil
	}
}

func summarize(diffs []gitsync.Diff) ReconcileResult {
	entries := make([]DiffEntry, 0, len(diffs))
	for _, d := range diffs {
		entries = append(entries, DiffEntry{
			Path:              d.Path,
			Status:            d.Status,
			Additions:         d.Additions,
			Deletions:         d.Deletions,
			ObservedLocalPath: d.ObservedLocalPath,
		})
	}

	return ReconcileResult{TotalDiffs: len(entries), Diffs: entries}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
