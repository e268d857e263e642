package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/store"
)

// StatsTool handles the stats MCP tool.
type StatsTool struct {
	store *store.Store
}

// NewStatsTool creates a StatsTool with the given store.
func NewStatsTool(s *store.Store) *StatsTool {
	return &StatsTool{store: s}
}

// Definition returns the MCP tool definition for stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("stats",
		mcp.WithDescription(
			"Show relationship memory statistics: contacts, notes, facts, hot topics and groups.",
		),
	)
}

// Handle processes the stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Kith Statistics\n\n")
	sb.WriteString(fmt.Sprintf("- **Contacts**: %d (%d with an AI summary)\n", stats.Contacts, stats.Summarized))
	sb.WriteString(fmt.Sprintf("- **Notes**: %d\n", stats.Notes))
	sb.WriteString(fmt.Sprintf("- **Facts**: %d\n", stats.Facts))
	sb.WriteString(fmt.Sprintf("- **Hot topics**: %d\n", stats.HotTopics))
	sb.WriteString(fmt.Sprintf("- **Groups**: %d\n", stats.Groups))

	return mcp.NewToolResultText(sb.String()), nil
}
