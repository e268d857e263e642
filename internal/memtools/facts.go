package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/store"
)

// ─── fact_add ────────────────────────────────────────────────────────────────

// FactAddTool handles the fact_add MCP tool.
type FactAddTool struct {
	store *store.Store
}

// NewFactAddTool creates a FactAddTool with the given store.
func NewFactAddTool(s *store.Store) *FactAddTool {
	return &FactAddTool{store: s}
}

// Definition returns the MCP tool definition for fact_add.
func (t *FactAddTool) Definition() mcp.Tool {
	return mcp.NewTool("fact_add",
		mcp.WithDescription(
			"Record a structured fact about a contact (where they work, their city, a birthday...). "+
				"Facts captured from voice notes are added automatically; use this for manual corrections.",
		),
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
		mcp.WithString("fact_type",
			mcp.Required(),
			mcp.Description("Kind of fact"),
			mcp.Enum(store.FactTypeValues()...),
		),
		mcp.WithString("fact_key",
			mcp.Required(),
			mcp.Description("Short label (e.g. 'employer', 'partner', 'favorite food')"),
		),
		mcp.WithString("fact_value",
			mcp.Required(),
			mcp.Description("The value"),
		),
	)
}

// Handle processes the fact_add tool call.
func (t *FactAddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID := req.GetString("contact_id", "")
	if contactID == "" {
		return mcp.NewToolResultError("'contact_id' is required"), nil
	}
	typ, err := store.ParseFactType(req.GetString("fact_type", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("'fact_type' must be one of: %s",
			strings.Join(store.FactTypeValues(), ", "))), nil
	}

	f, err := t.store.CreateFact(store.FactParams{
		ContactID: contactID,
		FactDraft: store.FactDraft{
			Type:  typ,
			Key:   req.GetString("fact_key", ""),
			Value: req.GetString("fact_value", ""),
		},
	})
	if err != nil {
		return storeError("add fact", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Fact saved: %s / %s = **%s** (id: `%s`)", f.Type, f.Key, f.Value, f.ID)), nil
}

// ─── fact_update ─────────────────────────────────────────────────────────────

// FactUpdateTool handles the fact_update MCP tool.
type FactUpdateTool struct {
	store *store.Store
}

// NewFactUpdateTool creates a FactUpdateTool with the given store.
func NewFactUpdateTool(s *store.Store) *FactUpdateTool {
	return &FactUpdateTool{store: s}
}

// Definition returns the MCP tool definition for fact_update.
func (t *FactUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("fact_update",
		mcp.WithDescription("Correct the value of a fact. Type and key cannot change; delete and re-add instead."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Fact id"),
		),
		mcp.WithString("fact_value",
			mcp.Required(),
			mcp.Description("New value"),
		),
	)
}

// Handle processes the fact_update tool call.
func (t *FactUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	f, err := t.store.UpdateFact(id, req.GetString("fact_value", ""))
	if err != nil {
		return storeError("update fact", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Fact updated: %s / %s = **%s**", f.Type, f.Key, f.Value)), nil
}

// ─── fact_delete ─────────────────────────────────────────────────────────────

// FactDeleteTool handles the fact_delete MCP tool.
type FactDeleteTool struct {
	store *store.Store
}

// NewFactDeleteTool creates a FactDeleteTool with the given store.
func NewFactDeleteTool(s *store.Store) *FactDeleteTool {
	return &FactDeleteTool{store: s}
}

// Definition returns the MCP tool definition for fact_delete.
func (t *FactDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("fact_delete",
		mcp.WithDescription("Delete a fact."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Fact id"),
		),
	)
}

// Handle processes the fact_delete tool call.
func (t *FactDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := t.store.DeleteFact(id); err != nil {
		return storeError("delete fact", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Fact `%s` deleted.", id)), nil
}

// ─── hot_topic_add ───────────────────────────────────────────────────────────

// HotTopicAddTool handles the hot_topic_add MCP tool.
type HotTopicAddTool struct {
	store *store.Store
}

// NewHotTopicAddTool creates a HotTopicAddTool with the given store.
func NewHotTopicAddTool(s *store.Store) *HotTopicAddTool {
	return &HotTopicAddTool{store: s}
}

// Definition returns the MCP tool definition for hot_topic_add.
func (t *HotTopicAddTool) Definition() mcp.Tool {
	return mcp.NewTool("hot_topic_add",
		mcp.WithDescription(
			"Track an ongoing thread with a contact worth following up on (a move, a new job, a health issue).",
		),
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short title"),
		),
		mcp.WithString("context",
			mcp.Description("Details worth remembering"),
		),
	)
}

// Handle processes the hot_topic_add tool call.
func (t *HotTopicAddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID := req.GetString("contact_id", "")
	if contactID == "" {
		return mcp.NewToolResultError("'contact_id' is required"), nil
	}
	h, err := t.store.CreateHotTopic(store.HotTopicParams{
		ContactID: contactID,
		HotTopicDraft: store.HotTopicDraft{
			Title:   req.GetString("title", ""),
			Context: req.GetString("context", ""),
		},
	})
	if err != nil {
		return storeError("add hot topic", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Hot topic saved: **%s** (id: `%s`)", h.Title, h.ID)), nil
}

// ─── hot_topic_update ────────────────────────────────────────────────────────

// HotTopicUpdateTool handles the hot_topic_update MCP tool.
type HotTopicUpdateTool struct {
	store *store.Store
}

// NewHotTopicUpdateTool creates a HotTopicUpdateTool with the given store.
func NewHotTopicUpdateTool(s *store.Store) *HotTopicUpdateTool {
	return &HotTopicUpdateTool{store: s}
}

// Definition returns the MCP tool definition for hot_topic_update.
func (t *HotTopicUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("hot_topic_update",
		mcp.WithDescription("Edit a hot topic or mark it resolved."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Hot topic id"),
		),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("context", mcp.Description("New context (empty string clears it)")),
		mcp.WithBoolean("resolved", mcp.Description("Whether the thread is closed")),
	)
}

// Handle processes the hot_topic_update tool call.
func (t *HotTopicUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	h, err := t.store.UpdateHotTopic(id, store.UpdateHotTopicParams{
		Title:    optString(req, "title"),
		Context:  optString(req, "context"),
		Resolved: optBool(req, "resolved"),
	})
	if err != nil {
		return storeError("update hot topic", err), nil
	}
	state := "open"
	if h.Resolved {
		state = "resolved"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Hot topic updated: **%s** (%s)", h.Title, state)), nil
}

// ─── hot_topic_delete ────────────────────────────────────────────────────────

// HotTopicDeleteTool handles the hot_topic_delete MCP tool.
type HotTopicDeleteTool struct {
	store *store.Store
}

// NewHotTopicDeleteTool creates a HotTopicDeleteTool with the given store.
func NewHotTopicDeleteTool(s *store.Store) *HotTopicDeleteTool {
	return &HotTopicDeleteTool{store: s}
}

// Definition returns the MCP tool definition for hot_topic_delete.
func (t *HotTopicDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("hot_topic_delete",
		mcp.WithDescription("Delete a hot topic."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Hot topic id"),
		),
	)
}

// Handle processes the hot_topic_delete tool call.
func (t *HotTopicDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := t.store.DeleteHotTopic(id); err != nil {
		return storeError("delete hot topic", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Hot topic `%s` deleted.", id)), nil
}
