// Package memtools provides MCP tool handlers over the Local Store:
// contacts, notes, facts, hot topics and groups.
//
// Each tool handler follows the same pattern:
// - A struct with the store injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Domain failures (unknown ids, invalid input) are returned as tool errors,
// never as Go errors, so the host can show them to the user.
package memtools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/kith/internal/store"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// optString returns a pointer to the argument when the caller sent it,
// so partial updates can tell "absent" from "set to empty".
func optString(req mcp.CallToolRequest, key string) *string {
	v, ok := req.GetArguments()[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// optBool is optString for booleans.
func optBool(req mcp.CallToolRequest, key string) *bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return nil
	}
	return &v
}

// stringSlice reads an array of strings, or a comma separated string.
func stringSlice(req mcp.CallToolRequest, key string) ([]string, bool) {
	switch v := req.GetArguments()[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	case []string:
		return v, true
	case string:
		if strings.TrimSpace(v) == "" {
			return []string{}, true
		}
		return strings.Split(v, ","), true
	}
	return nil, false
}

// storeError renders a store error as a tool error result.
func storeError(action string, err error) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidInput) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", action, strings.TrimPrefix(err.Error(), "store: ")))
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
}

// writeContactLine renders one contact as a markdown list item.
func writeContactLine(b *strings.Builder, c store.Contact) {
	fmt.Fprintf(b, "- **%s** `%s`", c.DisplayName(), c.ID)
	if len(c.Tags) > 0 {
		fmt.Fprintf(b, " [%s]", strings.Join(c.Tags, ", "))
	}
	if c.LastContactAt != nil {
		fmt.Fprintf(b, " (last contact %s)", shortDate(*c.LastContactAt))
	}
	b.WriteString("\n")
}

// shortDate trims a stored timestamp to its date.
func shortDate(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
