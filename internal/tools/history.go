package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/history"
)

// ─── history_list ────────────────────────────────────────────────────────────

// HistoryListTool handles the history_list MCP tool.
type HistoryListTool struct {
	journal *history.Journal
}

// NewHistoryListTool creates a HistoryListTool.
func NewHistoryListTool(j *history.Journal) *HistoryListTool {
	return &HistoryListTool{journal: j}
}

// Definition returns the MCP tool definition for history_list.
func (t *HistoryListTool) Definition() mcp.Tool {
	return mcp.NewTool("history_list",
		mcp.WithDescription("Show recently asked questions and their answers, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries to show (default: all)"),
		),
	)
}

// Handle processes the history_list tool call.
func (t *HistoryListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !t.journal.Hydrated() {
		if err := t.journal.Load(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("question history is unavailable: %v", err)), nil
		}
	}
	entries := t.journal.Entries()
	if len(entries) == 0 {
		return mcp.NewToolResultText("No questions asked yet."), nil
	}
	if limit := int(req.GetFloat("limit", 0)); limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Question history (%d)\n\n", len(entries))
	for _, e := range entries {
		about := ""
		if e.ContactName != "" {
			about = " about " + e.ContactName
		}
		fmt.Fprintf(&b, "- **%s**%s (%s) `%s`\n", e.Question, about, e.Timestamp.Local().Format("2006-01-02 15:04"), e.ID)
		if e.AnswerSummary != "" {
			fmt.Fprintf(&b, "  %s\n", e.AnswerSummary)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── history_remove ──────────────────────────────────────────────────────────

// HistoryRemoveTool handles the history_remove MCP tool.
type HistoryRemoveTool struct {
	journal *history.Journal
}

// NewHistoryRemoveTool creates a HistoryRemoveTool.
func NewHistoryRemoveTool(j *history.Journal) *HistoryRemoveTool {
	return &HistoryRemoveTool{journal: j}
}

// Definition returns the MCP tool definition for history_remove.
func (t *HistoryRemoveTool) Definition() mcp.Tool {
	return mcp.NewTool("history_remove",
		mcp.WithDescription("Forget one question from the history."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("History entry id"),
		),
	)
}

// Handle processes the history_remove tool call.
func (t *HistoryRemoveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	removed, err := t.journal.Remove(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update history: %v", err)), nil
	}
	if !removed {
		return mcp.NewToolResultError(fmt.Sprintf("no history entry `%s`", id)), nil
	}
	return mcp.NewToolResultText("Removed from history."), nil
}

// ─── history_clear ───────────────────────────────────────────────────────────

// HistoryClearTool handles the history_clear MCP tool.
type HistoryClearTool struct {
	journal *history.Journal
}

// NewHistoryClearTool creates a HistoryClearTool.
func NewHistoryClearTool(j *history.Journal) *HistoryClearTool {
	return &HistoryClearTool{journal: j}
}

// Definition returns the MCP tool definition for history_clear.
func (t *HistoryClearTool) Definition() mcp.Tool {
	return mcp.NewTool("history_clear",
		mcp.WithDescription("Forget every question in the history."),
	)
}

// Handle processes the history_clear tool call.
func (t *HistoryClearTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.journal.Clear(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear history: %v", err)), nil
	}
	return mcp.NewToolResultText("History cleared."), nil
}
