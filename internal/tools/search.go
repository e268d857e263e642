package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/history"
	"github.com/HendryAvila/kith/internal/search"
)

// SearchTool handles the search MCP tool.
type SearchTool struct {
	orchestrator *search.Orchestrator
	journal      *history.Journal
	log          *logrus.Entry
}

// NewSearchTool creates a SearchTool. journal may be nil.
func NewSearchTool(o *search.Orchestrator, j *history.Journal, log *logrus.Entry) *SearchTool {
	return &SearchTool{orchestrator: o, journal: j, log: log}
}

// Definition returns the MCP tool definition for search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription(
			"Ask a question about your contacts in plain language (\"who moved to Porto?\", "+
				"\"what does Ana's partner do?\"). Answers are ranked from facts, hot topics, "+
				"AI summaries and notes.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question"),
		),
		mcp.WithArray("contact_ids",
			mcp.WithStringItems(),
			mcp.Description("Limit the search to these contacts (default: everyone)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum answers to show (default: 5)"),
		),
	)
}

// Handle processes the search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	contactIDs := stringSlice(req, "contact_ids")

	ev, err := t.orchestrator.EvidenceFor(ctx, contactIDs)
	if err != nil {
		return errorResult("gather evidence", err), nil
	}
	results, err := t.orchestrator.Search(ctx, query, ev)
	if err != nil {
		return errorResult("search", err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("Nothing you have recorded answers that."), nil
	}

	if t.journal != nil {
		var contactID, contactName string
		if len(contactIDs) == 1 {
			contactID = contactIDs[0]
			contactName = t.orchestrator.ContactName(contactID)
		}
		if _, err := t.journal.Add(query, results[0].Snippet, contactID, contactName); err != nil {
			t.log.WithError(err).Warn("question history not updated")
		}
	}

	limit := int(req.GetFloat("limit", 5))
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", query)
	for i, r := range results[:limit] {
		fmt.Fprintf(&b, "%d. %s _(%s `%s`, score %.2f)_\n", i+1, r.Snippet, r.SourceType, r.SourceID, r.Score)
	}
	return mcp.NewToolResultText(b.String()), nil
}
