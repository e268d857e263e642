// Package prompts implements MCP prompt handlers for kith.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// PrepPrompt handles the kith-prep MCP prompt.
// It briefs the user before they meet someone.
type PrepPrompt struct{}

// NewPrepPrompt creates a PrepPrompt.
func NewPrepPrompt() *PrepPrompt {
	return &PrepPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *PrepPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("kith-prep",
		mcp.WithPromptDescription(
			"Get briefed before meeting someone: what you know about them, "+
				"what is going on in their life and what to ask about.",
		),
		mcp.WithArgument("name",
			mcp.ArgumentDescription("Who you are about to meet"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the kith-prep prompt request.
func (p *PrepPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := "them"
	if args := req.Params.Arguments; args != nil {
		if n, ok := args["name"]; ok && n != "" {
			name = n
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Prepare to meet %s", name),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I'm about to meet %s.\n\n"+
						"Please:\n"+
						"1. Run `contact_list` and find %s (ask me if there is more than one match)\n"+
						"2. Run `contact_get` for them and read their facts, hot topics and recent notes\n"+
						"3. Give me a short briefing: who they are, what is going on in their life, "+
						"and two or three things worth asking about (open hot topics first)\n"+
						"4. Remind me to record a voice note with `capture_start` afterwards",
					name, name,
				)),
			},
		},
	}, nil
}
