package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moolen/sre-assistant/internal/agent/tools"
)

type askInput struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
}

// AskTool exposes whole turns as a tool, for the MCP server.
func (c *Coordinator) AskTool() tools.Tool {
	return tools.NewFunc("ask",
		"Ask the SRE assistant a question. It answers general SRE questions directly and delegates "+
			"cost questions and Kubernetes cluster questions to its specialists.",
		tools.ObjectSchema(map[string]interface{}{
			"query":   tools.Property("string", "The question, in natural language"),
			"user_id": tools.Property("string", "Optional caller id used for log correlation"),
		}, "query"),
		func(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
			in, err := tools.Decode[askInput](input)
			if err != nil {
				return tools.Failure(fmt.Sprintf("invalid input: %v", err)), nil
			}
			if in.UserID == "" {
				in.UserID = "mcp"
			}
			transcript := Collect(c.RunTurn(ctx, in.Query, in.UserID))
			if err := transcript.Err(); err != nil {
				return tools.Failure(err.Error()), nil
			}
			return &tools.Result{
				Success: true,
				Data:    transcript.Response(),
				Summary: fmt.Sprintf("used %v", transcript.ToolNames()),
			}, nil
		})
}
