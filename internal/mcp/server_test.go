package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sre-assistant/internal/agent/tools"
)

func testToolbox(t *testing.T) *tools.Registry {
	t.Helper()
	listNamespaces := tools.NewFunc("list_namespaces", "List all namespaces", nil,
		func(context.Context, json.RawMessage) (*tools.Result, error) {
			return &tools.Result{Success: true, Data: []string{"default", "kube-system"}}, nil
		})
	ask := tools.NewFunc("ask", "Ask the assistant", tools.ObjectSchema(map[string]interface{}{
		"query": tools.Property("string", "question"),
	}, "query"), func(_ context.Context, input json.RawMessage) (*tools.Result, error) {
		params, err := tools.Decode[struct {
			Query string `json:"query"`
		}](input)
		if err != nil {
			return nil, err
		}
		if params.Query == "" {
			return tools.Failure("query is required"), nil
		}
		return tools.Text("answer to " + params.Query), nil
	})
	registry, err := tools.NewRegistry(listNamespaces, ask)
	require.NoError(t, err)
	return registry
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestServerToolHandlers(t *testing.T) {
	s, err := NewServer("test", testToolbox(t))
	require.NoError(t, err)
	ctx := context.Background()

	result, err := s.createToolHandler("list_namespaces")(ctx, callRequest("list_namespaces", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `["default","kube-system"]`, resultText(t, result))

	result, err = s.createToolHandler("ask")(ctx, callRequest("ask", map[string]interface{}{"query": "pods?"}))
	require.NoError(t, err)
	assert.Equal(t, "answer to pods?", resultText(t, result))

	result, err = s.createToolHandler("ask")(ctx, callRequest("ask", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "query is required", resultText(t, result))
}

func TestServerPrompts(t *testing.T) {
	s, err := NewServer("test", testToolbox(t))
	require.NoError(t, err)

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"pod_name": "web-1"}
	prompt, err := s.triagePodPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, prompt.Messages, 1)
	text := prompt.Messages[0].Content.(mcp.TextContent).Text
	assert.Contains(t, text, "pod web-1 in namespace default")

	req.Params.Arguments = map[string]string{}
	_, err = s.triagePodPrompt(context.Background(), req)
	assert.Error(t, err)

	req.Params.Arguments = map[string]string{"period": "last month"}
	prompt, err = s.costReviewPrompt(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, prompt.Messages[0].Content.(mcp.TextContent).Text, "What are my AWS costs for last month?")
}
