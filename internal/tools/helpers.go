// Package tools implements the MCP tool handlers for kith's workflows:
// voice capture, enrichment watching, reminders, search and question
// history.
//
// Each tool receives its dependencies via its struct and returns a handler
// compatible with mcp-go's CallToolRequest signature. Store-level CRUD
// tools live in internal/memtools.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/HendryAvila/kith/internal/config"
	"github.com/HendryAvila/kith/internal/remote"
	"github.com/HendryAvila/kith/internal/store"
)

// Gate wraps a handler for a feature that reaches the enrichment service.
// Identities the access config does not allow get a tool error instead.
func Gate(access *config.AccessConfig, log *logrus.Entry, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if access != nil && !access.Allows(access.Identity) {
			log.WithFields(logrus.Fields{"identity": access.Identity, "tool": req.Params.Name}).
				Warn("enrichment feature denied")
			return mcp.NewToolResultError(
				"This feature needs the enrichment service, which is not enabled for your account.",
			), nil
		}
		return next(ctx, req)
	}
}

// errorResult renders a workflow error for the host.
func errorResult(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, remote.ErrNetwork):
		return mcp.NewToolResultError(fmt.Sprintf("%s: the enrichment service is unreachable (%v)", action, err))
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidInput):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", action, strings.TrimPrefix(err.Error(), "store: ")))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
}

// stringSlice reads an array of strings, or a comma separated string.
func stringSlice(req mcp.CallToolRequest, key string) []string {
	var raw []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = v
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
