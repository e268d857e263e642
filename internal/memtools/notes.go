package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/store"
)

// notePreviewLen bounds the note text shown in lists.
const notePreviewLen = 160

func notePreview(n store.Note) string {
	var text string
	switch {
	case n.Summary != nil && *n.Summary != "":
		text = *n.Summary
	case n.Transcription != nil:
		text = *n.Transcription
	default:
		return "_(audio only)_"
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > notePreviewLen {
		text = string(r[:notePreviewLen]) + "..."
	}
	return text
}

// ─── note_list ───────────────────────────────────────────────────────────────

// NoteListTool handles the note_list MCP tool.
type NoteListTool struct {
	store *store.Store
}

// NewNoteListTool creates a NoteListTool with the given store.
func NewNoteListTool(s *store.Store) *NoteListTool {
	return &NoteListTool{store: s}
}

// Definition returns the MCP tool definition for note_list.
func (t *NoteListTool) Definition() mcp.Tool {
	return mcp.NewTool("note_list",
		mcp.WithDescription("List a contact's voice notes, newest first."),
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum notes to return (default: 20)"),
		),
		mcp.WithBoolean("full",
			mcp.Description("Show the full transcription instead of a preview"),
		),
	)
}

// Handle processes the note_list tool call.
func (t *NoteListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID := req.GetString("contact_id", "")
	if contactID == "" {
		return mcp.NewToolResultError("'contact_id' is required"), nil
	}
	if _, err := t.store.GetContact(contactID); err != nil {
		return storeError("list notes", err), nil
	}
	notes, err := t.store.ListNotesByContact(contactID, intArg(req, "limit", 20))
	if err != nil {
		return storeError("list notes", err), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("No notes for this contact yet."), nil
	}

	full := req.GetBool("full", false)
	var b strings.Builder
	fmt.Fprintf(&b, "## Notes (%d)\n\n", len(notes))
	for _, n := range notes {
		fmt.Fprintf(&b, "### %s `%s`\n\n", n.CreatedAt[:min(len(n.CreatedAt), 16)], n.ID)
		if n.AudioDurationMs != nil {
			fmt.Fprintf(&b, "_%.0fs of audio_\n\n", float64(*n.AudioDurationMs)/1000)
		}
		if full && n.Transcription != nil {
			b.WriteString(*n.Transcription + "\n\n")
			if n.Summary != nil {
				fmt.Fprintf(&b, "**Summary:** %s\n\n", *n.Summary)
			}
			continue
		}
		b.WriteString(notePreview(n) + "\n\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── note_delete ─────────────────────────────────────────────────────────────

// NoteDeleteTool handles the note_delete MCP tool.
type NoteDeleteTool struct {
	store *store.Store
}

// NewNoteDeleteTool creates a NoteDeleteTool with the given store.
func NewNoteDeleteTool(s *store.Store) *NoteDeleteTool {
	return &NoteDeleteTool{store: s}
}

// Definition returns the MCP tool definition for note_delete.
func (t *NoteDeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("note_delete",
		mcp.WithDescription("Delete a voice note. Facts extracted from it are kept."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Note id"),
		),
	)
}

// Handle processes the note_delete tool call.
func (t *NoteDeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	if err := t.store.DeleteNote(id); err != nil {
		return storeError("delete note", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Note `%s` deleted.", id)), nil
}
