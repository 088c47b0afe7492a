// Package provider implements the reasoning oracles behind every agent loop:
// hosted LLMs (Anthropic, Gemini) and two deterministic stand-ins used for
// offline runs and tests (an example-matching heuristic and a scripted
// scenario player).
package provider

import (
	"context"
	"encoding/json"
)

// Message represents a conversation message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolUse is set when the assistant wants to call a tool
	ToolUse []ToolUseBlock `json:"tool_use,omitempty"`

	// ToolResult carries the results of the previous assistant message's
	// tool calls, one block per call.
	ToolResult []ToolResultBlock `json:"tool_result,omitempty"`
}

// Role represents the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolUseBlock represents a tool call request from the model.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock represents the result of a tool execution.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	// ToolName is needed by backends that key results by function name.
	ToolName string `json:"tool_name,omitempty"`
	Content  string `json:"content"`
	IsError  bool   `json:"is_error,omitempty"`
}

// ToolDefinition defines a tool that can be called by the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Response represents the model's response.
type Response struct {
	// Content is the text content of the response (may be empty if only tool calls)
	Content string

	// ToolCalls contains any tool use requests from the model
	ToolCalls []ToolUseBlock

	// StopReason indicates why the model stopped generating
	StopReason StopReason

	// Usage contains token usage information
	Usage Usage
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// TextHandler receives response text as it is generated.
type TextHandler func(text string)

// Provider defines the interface for reasoning oracles. Implementations must
// be safe for concurrent use; one provider serves every concurrent turn.
type Provider interface {
	// Chat sends messages to the model and returns the complete response.
	Chat(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition) (*Response, error)

	// Name returns the provider name for logging and display.
	Name() string

	// Model returns the model identifier being used.
	Model() string
}

// StreamingProvider is implemented by providers that can deliver text
// incrementally. The returned Response holds the full text and tool calls.
type StreamingProvider interface {
	Provider
	ChatStream(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition, onText TextHandler) (*Response, error)
}

// Config contains common configuration for providers.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	APIKey      string
}

// Default models per hosted backend.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultGeminiModel    = "gemini-2.5-flash"
	defaultMaxTokens      = 4096
)

func (c Config) withDefaults(model string) Config {
	if c.Model == "" {
		c.Model = model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}
