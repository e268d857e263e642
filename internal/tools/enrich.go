package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/enrich"
	"github.com/HendryAvila/kith/internal/store"
)

// maxWatchWait bounds how long enrich_watch may block the caller.
const maxWatchWait = 60 * time.Second

// LogUpdates returns an onUpdate callback that logs poller progress.
func LogUpdates(log *logrus.Entry) func(enrich.Update) {
	return func(u enrich.Update) {
		entry := log.WithField("contact_id", u.ContactID)
		switch {
		case u.Err != nil:
			entry.WithError(u.Err).WithField("failures", u.Failures).Debug("enrichment fetch failed")
		case !u.Polling:
			entry.Debug("enrichment settled")
		}
	}
}

func formatResult(contactID string, r enrich.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Contact:** `%s`\n", contactID)
	fmt.Fprintf(&b, "**Watch:** %s after %d fetches\n", r.Outcome, r.Fetches)
	if r.Err != nil {
		fmt.Fprintf(&b, "**Error:** %v\n", r.Err)
	}
	if r.Detail != nil {
		if s := r.Detail.Contact.AISummary; s != nil {
			fmt.Fprintf(&b, "\n**AI summary:** %s\n", *s)
		} else if enrich.NeedsPolling(r.Detail) {
			b.WriteString("\n_Summary not ready yet._\n")
		}
	}
	return b.String()
}

// ─── enrich_watch ────────────────────────────────────────────────────────────

// EnrichWatchTool handles the enrich_watch MCP tool.
type EnrichWatchTool struct {
	poller *enrich.Poller
	log    *logrus.Entry
}

// NewEnrichWatchTool creates an EnrichWatchTool.
func NewEnrichWatchTool(p *enrich.Poller, log *logrus.Entry) *EnrichWatchTool {
	return &EnrichWatchTool{poller: p, log: log}
}

// Definition returns the MCP tool definition for enrich_watch.
func (t *EnrichWatchTool) Definition() mcp.Tool {
	return mcp.NewTool("enrich_watch",
		mcp.WithDescription(
			"Watch a contact until their AI summary lands. Watching starts automatically after a capture; "+
				"use this to refresh one now or to wait for the result.",
		),
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Contact id"),
		),
		mcp.WithNumber("wait_seconds",
			mcp.Description("Block up to this many seconds for the summary (default: 0, max: 60)"),
		),
	)
}

// Handle processes the enrich_watch tool call.
func (t *EnrichWatchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID := req.GetString("contact_id", "")
	if contactID == "" {
		return mcp.NewToolResultError("'contact_id' is required"), nil
	}

	w, existing := t.poller.Get(contactID)
	if existing {
		w.Invalidate()
	} else {
		// The watch outlives this request; Poller.StopAll ends it on shutdown.
		w = t.poller.Watch(context.WithoutCancel(ctx), contactID, LogUpdates(t.log))
	}

	wait := time.Duration(req.GetFloat("wait_seconds", 0) * float64(time.Second))
	if wait > maxWatchWait {
		wait = maxWatchWait
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-w.Done():
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	return mcp.NewToolResultText(formatResult(contactID, w.Result())), nil
}

// ─── enrich_status ───────────────────────────────────────────────────────────

// EnrichStatusTool handles the enrich_status MCP tool.
type EnrichStatusTool struct {
	poller *enrich.Poller
	store  *store.Store
}

// NewEnrichStatusTool creates an EnrichStatusTool.
func NewEnrichStatusTool(p *enrich.Poller, s *store.Store) *EnrichStatusTool {
	return &EnrichStatusTool{poller: p, store: s}
}

// Definition returns the MCP tool definition for enrich_status.
func (t *EnrichStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("enrich_status",
		mcp.WithDescription("List contacts whose AI summary is still being waited on."),
	)
}

// Handle processes the enrich_status tool call.
func (t *EnrichStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := t.poller.Active()
	if len(ids) == 0 {
		return mcp.NewToolResultText("No summaries pending."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Pending summaries (%d)\n\n", len(ids))
	for _, id := range ids {
		name := id
		if c, err := t.store.GetContact(id); err == nil {
			name = c.DisplayName()
		}
		fetches := 0
		if w, ok := t.poller.Get(id); ok {
			fetches = w.Result().Fetches
		}
		fmt.Fprintf(&b, "- **%s** `%s`: %d checks so far\n", name, id, fetches)
	}
	return mcp.NewToolResultText(b.String()), nil
}
