package capability

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moolen/sre-assistant/internal/agent/tools"
)

type queryInput struct {
	Query string `json:"query"`
}

// Tool exposes a Capability to a reasoning loop. A failed Outcome becomes a
// failed tool result carrying the same text. Capabilities that only implement
// Invoke always produce successful results.
type Tool struct {
	capability Capability
}

// AsTool wraps c.
func AsTool(c Capability) *Tool {
	return &Tool{capability: c}
}

func (t *Tool) Name() string        { return t.capability.Name() }
func (t *Tool) Description() string { return t.capability.Description() }

func (t *Tool) InputSchema() map[string]interface{} {
	return tools.ObjectSchema(map[string]interface{}{
		"query": tools.Property("string", "The complete user query, passed through unchanged"),
	}, "query")
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*tools.Result, error) {
	in, err := tools.Decode[queryInput](input)
	if err != nil {
		return tools.Failure(fmt.Sprintf("invalid input: %v", err)), nil
	}
	out := t.answer(ctx, in.Query)
	if out.Failed {
		return tools.Failure(out.Text), nil
	}
	return tools.Text(out.Text), nil
}

func (t *Tool) answer(ctx context.Context, query string) Outcome {
	if a, ok := t.capability.(Answerer); ok {
		return a.Answer(ctx, query)
	}
	return Outcome{Text: t.capability.Invoke(ctx, query)}
}

// Registry builds the routing toolbox from capabilities in order.
func Registry(capabilities ...Capability) (*tools.Registry, error) {
	toolset := make([]tools.Tool, 0, len(capabilities))
	for _, c := range capabilities {
		toolset = append(toolset, AsTool(c))
	}
	return tools.NewRegistry(toolset...)
}
