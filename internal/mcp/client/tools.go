package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/moolen/sre-assistant/internal/agent/tools"
)

// Tool exposes one tool of an open Session as a tools.Tool. It is only
// valid while the session is open.
type Tool struct {
	tool    mcp.Tool
	schema  map[string]interface{}
	session Session
}

// NewTool wraps an MCP tool definition served by session.
func NewTool(tool mcp.Tool, session Session) (*Tool, error) {
	if tool.Name == "" {
		return nil, fmt.Errorf("mcp tool name is required")
	}
	schema, err := inputSchema(tool)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %s: %w", tool.Name, err)
	}
	return &Tool{tool: tool, schema: schema, session: session}, nil
}

// Toolbox lists the session's tools and builds a registry from them, in the
// order the server reports them.
func Toolbox(ctx context.Context, session Session) (*tools.Registry, error) {
	defs, err := session.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	adapted := make([]tools.Tool, 0, len(defs))
	for _, def := range defs {
		t, err := NewTool(def, session)
		if err != nil {
			return nil, err
		}
		adapted = append(adapted, t)
	}
	return tools.NewRegistry(adapted...)
}

func (t *Tool) Name() string                        { return t.tool.Name }
func (t *Tool) Description() string                 { return t.tool.Description }
func (t *Tool) InputSchema() map[string]interface{} { return t.schema }

// Execute calls the tool on the server. Transport failures and tool errors
// both become failed results so the oracle can react to them.
func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	args, err := tools.Decode[map[string]interface{}](input)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	for _, key := range requiredKeys(t.schema) {
		if _, ok := args[key]; !ok {
			return tools.Failure(fmt.Sprintf("missing required argument %q", key)), nil
		}
	}

	result, err := t.session.CallTool(ctx, t.tool.Name, args)
	if err != nil {
		return tools.Failure(fmt.Sprintf("MCP call %s failed: %v", t.tool.Name, err)), nil
	}
	if result == nil {
		return tools.Failure(fmt.Sprintf("MCP call %s returned no result", t.tool.Name)), nil
	}

	text := TextContent(result)
	if result.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return tools.Failure(text), nil
	}
	if text == "" && result.StructuredContent != nil {
		return &tools.Result{Success: true, Data: result.StructuredContent}, nil
	}
	return tools.Text(text), nil
}

// TextContent joins the text parts of a tool result.
func TextContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, item := range result.Content {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func inputSchema(tool mcp.Tool) (map[string]interface{}, error) {
	raw := tool.RawInputSchema
	if len(raw) == 0 {
		encoded, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("encode input schema: %w", err)
		}
		raw = encoded
	}
	schema := map[string]interface{}{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema, nil
}

func requiredKeys(schema map[string]interface{}) []string {
	req, _ := schema["required"].([]interface{})
	out := make([]string, 0, len(req))
	for _, r := range req {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
