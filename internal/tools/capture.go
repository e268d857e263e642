package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/capture"
)

func formatSnapshot(s capture.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Capture state:** %s\n", s.State)
	if s.ContactID != "" {
		fmt.Fprintf(&b, "**Contact:** `%s`\n", s.ContactID)
	}
	if s.AudioURI != "" {
		fmt.Fprintf(&b, "**Audio:** %s\n", s.AudioURI)
	}
	if s.Transcription != "" {
		fmt.Fprintf(&b, "**Transcript:** %s\n", s.Transcription)
	}
	if s.Reason != "" {
		fmt.Fprintf(&b, "**Error:** %s\n", s.Reason)
		b.WriteString("Call `capture_reset` to start over.\n")
	}
	if s.State == capture.StateIdle && s.LastCommit != nil {
		fmt.Fprintf(&b, "**Last saved note:** `%s`\n", s.LastCommit.Note.ID)
	}
	return b.String()
}

// ─── capture_start ───────────────────────────────────────────────────────────

// CaptureStartTool handles the capture_start MCP tool.
type CaptureStartTool struct {
	machine *capture.Machine
}

// NewCaptureStartTool creates a CaptureStartTool.
func NewCaptureStartTool(m *capture.Machine) *CaptureStartTool {
	return &CaptureStartTool{machine: m}
}

// Definition returns the MCP tool definition for capture_start.
func (t *CaptureStartTool) Definition() mcp.Tool {
	return mcp.NewTool("capture_start",
		mcp.WithDescription(
			"Start recording a voice note. Only one capture can be in progress. "+
				"Pass the contact the note is about now or when stopping.",
		),
		mcp.WithString("contact_id",
			mcp.Description("Contact the note is about"),
		),
	)
}

// Handle processes the capture_start tool call.
func (t *CaptureStartTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := t.machine.Start(ctx, req.GetString("contact_id", ""))
	if err != nil {
		if errors.Is(err, capture.ErrInvalidStateTransition) {
			return mcp.NewToolResultError(fmt.Sprintf("cannot start a capture now: %v\n\n%s", err, formatSnapshot(snap))), nil
		}
		return errorResult("start capture", err), nil
	}
	return mcp.NewToolResultText("Recording.\n\n" + formatSnapshot(snap)), nil
}

// ─── capture_stop ────────────────────────────────────────────────────────────

// CaptureStopTool handles the capture_stop MCP tool.
type CaptureStopTool struct {
	machine *capture.Machine
}

// NewCaptureStopTool creates a CaptureStopTool.
func NewCaptureStopTool(m *capture.Machine) *CaptureStopTool {
	return &CaptureStopTool{machine: m}
}

// Definition returns the MCP tool definition for capture_stop.
func (t *CaptureStopTool) Definition() mcp.Tool {
	return mcp.NewTool("capture_stop",
		mcp.WithDescription(
			"Stop recording, transcribe the note, extract facts and hot topics and save everything to the contact. "+
				"The contact's AI summary is refreshed in the background afterwards.",
		),
		mcp.WithString("contact_id",
			mcp.Description("Contact the note is about (overrides the one given at start)"),
		),
	)
}

// Handle processes the capture_stop tool call.
func (t *CaptureStopTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	commit, err := t.machine.Stop(ctx, req.GetString("contact_id", ""))
	if err != nil {
		var te *capture.TranscriptionError
		var ee *capture.ExtractionError
		switch {
		case errors.Is(err, capture.ErrInvalidStateTransition):
			return mcp.NewToolResultError(fmt.Sprintf("nothing is being recorded: %v", err)), nil
		case errors.Is(err, capture.ErrNoContact):
			return mcp.NewToolResultError(
				"The note was transcribed but no contact was selected, so nothing was saved. " +
					"Call capture_reset, then record again with a contact_id."), nil
		case errors.As(err, &te), errors.As(err, &ee):
			return mcp.NewToolResultError(err.Error() + "\n\nCall capture_reset to try again."), nil
		}
		return errorResult("save capture", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Note saved (id: `%s`).\n\n", commit.Note.ID)
	if commit.Note.Summary != nil {
		fmt.Fprintf(&b, "**Summary:** %s\n", *commit.Note.Summary)
	}
	fmt.Fprintf(&b, "- Facts extracted: %d\n", len(commit.FactIDs))
	fmt.Fprintf(&b, "- Hot topics extracted: %d\n", len(commit.HotTopicIDs))
	return mcp.NewToolResultText(b.String()), nil
}

// ─── capture_reset ───────────────────────────────────────────────────────────

// CaptureResetTool handles the capture_reset MCP tool.
type CaptureResetTool struct {
	machine *capture.Machine
}

// NewCaptureResetTool creates a CaptureResetTool.
func NewCaptureResetTool(m *capture.Machine) *CaptureResetTool {
	return &CaptureResetTool{machine: m}
}

// Definition returns the MCP tool definition for capture_reset.
func (t *CaptureResetTool) Definition() mcp.Tool {
	return mcp.NewTool("capture_reset",
		mcp.WithDescription("Clear a failed capture so a new one can start."),
	)
}

// Handle processes the capture_reset tool call.
func (t *CaptureResetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.machine.Reset(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("nothing to reset: %v", err)), nil
	}
	return mcp.NewToolResultText("Capture cleared."), nil
}

// ─── capture_status ──────────────────────────────────────────────────────────

// CaptureStatusTool handles the capture_status MCP tool.
type CaptureStatusTool struct {
	machine *capture.Machine
}

// NewCaptureStatusTool creates a CaptureStatusTool.
func NewCaptureStatusTool(m *capture.Machine) *CaptureStatusTool {
	return &CaptureStatusTool{machine: m}
}

// Definition returns the MCP tool definition for capture_status.
func (t *CaptureStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("capture_status",
		mcp.WithDescription("Show what the voice capture is doing."),
	)
}

// Handle processes the capture_status tool call.
func (t *CaptureStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatSnapshot(t.machine.Snapshot())), nil
}
