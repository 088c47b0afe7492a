// Package tools provides the tool contract shared by every agent loop and
// the ordered, immutable registries that make up a toolbox.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moolen/sre-assistant/internal/agent/provider"
	"github.com/moolen/sre-assistant/internal/logging"
)

const (
	// MaxToolResponseBytes is the maximum size of a tool response in bytes.
	// Responses larger than this are truncated before they reach the model.
	MaxToolResponseBytes = 50 * 1024
)

// truncatedData replaces structured output that exceeds MaxToolResponseBytes.
type truncatedData struct {
	Truncated      bool   `json:"_truncated"`
	OriginalBytes  int    `json:"_original_bytes"`
	TruncatedBytes int    `json:"_truncated_bytes"`
	TruncationNote string `json:"_truncation_note"`
	PartialData    string `json:"partial_data"`
}

// truncateResult shortens result data larger than maxBytes. Text data is cut
// in place; structured data is replaced by a truncatedData envelope.
func truncateResult(result *Result, maxBytes int) *Result {
	if result == nil || result.Data == nil {
		return result
	}

	if text, ok := result.Data.(string); ok {
		if len(text) <= maxBytes {
			return result
		}
		out := *result
		out.Data = text[:maxBytes] + fmt.Sprintf("\n\n[TRUNCATED: %d→%d bytes]", len(text), maxBytes)
		out.Summary = truncatedSummary(result.Summary, len(text), maxBytes)
		return &out
	}

	dataBytes, err := json.Marshal(result.Data)
	if err != nil {
		return result
	}
	if len(dataBytes) <= maxBytes {
		return result
	}

	// Keep the first ~80% of the allowed bytes for context.
	partialDataBytes := maxBytes * 80 / 100
	partialData := string(dataBytes)
	if len(partialData) > partialDataBytes {
		partialData = partialData[:partialDataBytes]
	}

	return &Result{
		Success: result.Success,
		Data: &truncatedData{
			Truncated:      true,
			OriginalBytes:  len(dataBytes),
			TruncatedBytes: maxBytes,
			TruncationNote: fmt.Sprintf("Response truncated from %d to ~%d bytes to prevent context overflow. Consider using more specific filters to reduce result size.", len(dataBytes), maxBytes),
			PartialData:    partialData,
		},
		Error:           result.Error,
		Summary:         truncatedSummary(result.Summary, len(dataBytes), maxBytes),
		ExecutionTimeMs: result.ExecutionTimeMs,
	}
}

func truncatedSummary(summary string, from, to int) string {
	if summary != "" {
		return fmt.Sprintf("%s [TRUNCATED: %d→%d bytes]", summary, from, to)
	}
	return fmt.Sprintf("[TRUNCATED: %d→%d bytes]", from, to)
}

// Tool defines the interface for agent tools.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a human-readable description for the LLM.
	Description() string

	// InputSchema returns JSON Schema for input validation.
	InputSchema() map[string]interface{}

	// Execute runs the tool with given input.
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Result represents the output of a tool execution.
type Result struct {
	// Success indicates if the tool executed successfully
	Success bool `json:"success"`

	// Data contains the tool's output. Strings are passed to the model as
	// text, anything else as JSON.
	Data interface{} `json:"data,omitempty"`

	// Error contains error details if Success is false
	Error string `json:"error,omitempty"`

	// Summary is a brief description of what happened (for display)
	Summary string `json:"summary,omitempty"`

	// ExecutionTimeMs is how long the tool took to run
	ExecutionTimeMs int64 `json:"executionTimeMs"`
}

// Content renders the result the way it is handed back to the model.
func (r *Result) Content() string {
	if !r.Success {
		if r.Error != "" {
			return r.Error
		}
		return "tool failed without an error message"
	}
	switch data := r.Data.(type) {
	case nil:
		return r.Summary
	case string:
		return data
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Sprintf("failed to encode tool result: %v", err)
		}
		return string(raw)
	}
}

// Text returns a successful text result.
func Text(text string) *Result {
	return &Result{Success: true, Data: text}
}

// Failure returns a failed result carrying msg.
func Failure(msg string) *Result {
	return &Result{Success: false, Error: msg}
}

// Registry is an ordered, immutable set of tools. It is built once and is
// safe for concurrent use.
type Registry struct {
	order  []Tool
	tools  map[string]Tool
	logger *logging.Logger
}

// NewRegistry builds a registry from tools in the given order. Duplicate or
// empty names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		order:  make([]Tool, 0, len(tools)),
		tools:  make(map[string]Tool, len(tools)),
		logger: logging.GetLogger("tools"),
	}
	for _, tool := range tools {
		name := tool.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		r.tools[name] = tool
		r.order = append(r.order, tool)
		r.logger.Debug("registered tool %s", name)
	}
	return r, nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, tool := range r.order {
		names[i] = tool.Name()
	}
	return names
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// ToProviderTools converts registry tools to provider tool definitions.
func (r *Registry) ToProviderTools() []provider.ToolDefinition {
	defs := make([]provider.ToolDefinition, 0, len(r.order))
	for _, tool := range r.order {
		defs = append(defs, provider.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return defs
}

// Execute runs a tool by name with the given input. Errors returned by the
// tool become failed results.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) *Result {
	tool, ok := r.Get(name)
	if !ok {
		return Failure(fmt.Sprintf("tool %q not found", name))
	}

	start := time.Now()
	result, err := tool.Execute(ctx, input)
	if err != nil {
		return &Result{
			Success:         false,
			Error:           err.Error(),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}
	}
	if result == nil {
		result = &Result{Success: true}
	}

	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	return truncateResult(result, MaxToolResponseBytes)
}
