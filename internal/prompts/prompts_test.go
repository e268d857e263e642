package prompts

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	require.Len(t, res.Messages, 1)
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestPrepPrompt(t *testing.T) {
	p := NewPrepPrompt()
	assert.Equal(t, "kith-prep", p.Definition().Name)

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"name": "Ana"}
	res, err := p.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Prepare to meet Ana", res.Description)
	assert.Contains(t, promptText(t, res), "I'm about to meet Ana.")
	assert.Contains(t, promptText(t, res), "`contact_get`")
}

func TestPrepPrompt_NoName(t *testing.T) {
	res, err := NewPrepPrompt().Handle(context.Background(), mcp.GetPromptRequest{})
	require.NoError(t, err)
	assert.Equal(t, "Prepare to meet them", res.Description)
}

func TestCatchUpPrompt(t *testing.T) {
	p := NewCatchUpPrompt()
	assert.Equal(t, "kith-catch-up", p.Definition().Name)

	res, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	require.NoError(t, err)
	text := promptText(t, res)
	assert.Contains(t, text, "`follow_ups`")
	assert.Contains(t, text, "`contact_touch`")
}
