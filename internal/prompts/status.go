package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// CatchUpPrompt handles the kith-catch-up MCP prompt.
// It walks the user through the people they have drifted away from.
type CatchUpPrompt struct{}

// NewCatchUpPrompt creates a CatchUpPrompt.
func NewCatchUpPrompt() *CatchUpPrompt {
	return &CatchUpPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *CatchUpPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("kith-catch-up",
		mcp.WithPromptDescription(
			"See who you have not been in touch with for a while and what to reach out about.",
		),
	)
}

// Handle processes the kith-catch-up prompt request.
func (p *CatchUpPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Catch up with your people",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `follow_ups` to see who I have not been in touch with lately.\n\n" +
						"Then:\n" +
						"1. For the first few people, run `contact_get` and pick one open hot topic to ask about\n" +
						"2. Suggest a one-line message I could send each of them\n" +
						"3. Run `reminder_list` and mention anything coming up this week\n" +
						"4. When I say I've reached out to someone, run `contact_touch` for them",
				),
			},
		},
	}, nil
}
