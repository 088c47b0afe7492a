package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted conversation loaded from YAML. Each request consumes
// the first unused step whose conditions match it.
//
//	name: cost-route
//	steps:
//	  - toolbox: finops_assistant
//	    trigger: user_message
//	    tool_calls:
//	      - name: finops_assistant
//	        args: {query: "{{query}}"}
//	  - trigger: tool_result:finops_assistant
//	    text: "Your spend for the last 30 days was $1,234."
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one scripted oracle response.
type ScenarioStep struct {
	// Trigger selects requests by their last message:
	//   ""                   any request
	//   "user_message"       last message is user text
	//   "tool_result:<name>" last message carries a result of tool <name>
	//   "contains:<text>"    last message text contains <text> (case-insensitive)
	Trigger string `yaml:"trigger,omitempty"`

	// Toolbox, when set, requires a tool of this name in the request.
	Toolbox string `yaml:"toolbox,omitempty"`

	Text      string             `yaml:"text,omitempty"`
	ToolCalls []ScriptedToolCall `yaml:"tool_calls,omitempty"`

	// Error makes the oracle fail with this message.
	Error string `yaml:"error,omitempty"`
}

// ScriptedToolCall is a tool call the scripted oracle makes. String arguments
// equal to "{{query}}" are replaced by the text of the last user message.
type ScriptedToolCall struct {
	Name string                 `yaml:"name"`
	Args map[string]interface{} `yaml:"args"`
}

// ErrNoMatchingStep is returned when the script has no step for a request.
var ErrNoMatchingStep = errors.New("scripted provider: no step matches request")

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Validate checks that the scenario is valid.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario must have at least one step")
	}
	for i, step := range s.Steps {
		if step.Text == "" && len(step.ToolCalls) == 0 && step.Error == "" {
			return fmt.Errorf("step[%d]: must have text, tool_calls or error", i)
		}
		for j, tc := range step.ToolCalls {
			if tc.Name == "" {
				return fmt.Errorf("step[%d].tool_calls[%d]: name is required", i, j)
			}
		}
	}
	return nil
}

// ScriptedProvider replays a Scenario. It is safe for concurrent use, but
// concurrent turns share one script.
type ScriptedProvider struct {
	scenario *Scenario

	mu       sync.Mutex
	consumed []bool
	calls    int
}

// NewScriptedProvider creates a provider replaying scenario.
func NewScriptedProvider(scenario *Scenario) *ScriptedProvider {
	return &ScriptedProvider{scenario: scenario, consumed: make([]bool, len(scenario.Steps))}
}

// Name implements Provider.Name.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Model implements Provider.Model.
func (p *ScriptedProvider) Model() string {
	return p.scenario.Name
}

// Remaining reports how many steps have not been consumed.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.consumed {
		if !c {
			n++
		}
	}
	return n
}

// Chat implements Provider.Chat.
func (p *ScriptedProvider) Chat(ctx context.Context, _ string, messages []Message, tools []ToolDefinition) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("scripted provider: no messages")
	}

	p.mu.Lock()
	step, id := p.next(messages, tools)
	p.mu.Unlock()

	if step == nil {
		return nil, ErrNoMatchingStep
	}
	if step.Error != "" {
		return nil, errors.New(step.Error)
	}

	resp := &Response{Content: step.Text, StopReason: StopReasonEndTurn}
	query := lastUserText(messages)
	for i, tc := range step.ToolCalls {
		input, err := json.Marshal(substituteQuery(tc.Args, query))
		if err != nil {
			return nil, fmt.Errorf("scripted provider: encode arguments for %s: %w", tc.Name, err)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolUseBlock{
			ID:    fmt.Sprintf("scripted-%d-%d", id, i),
			Name:  tc.Name,
			Input: input,
		})
	}
	if len(resp.ToolCalls) > 0 {
		resp.StopReason = StopReasonToolUse
	}
	return resp, nil
}

// ChatStream implements StreamingProvider.ChatStream, delivering the step
// text word by word.
func (p *ScriptedProvider) ChatStream(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition, onText TextHandler) (*Response, error) {
	resp, err := p.Chat(ctx, systemPrompt, messages, tools)
	if err != nil {
		return nil, err
	}
	if onText != nil {
		for _, chunk := range chunkText(resp.Content, 1) {
			onText(chunk)
		}
	}
	return resp, nil
}

// next must be called with p.mu held.
func (p *ScriptedProvider) next(messages []Message, tools []ToolDefinition) (*ScenarioStep, int) {
	for i := range p.scenario.Steps {
		if p.consumed[i] {
			continue
		}
		step := &p.scenario.Steps[i]
		if step.Toolbox != "" && !hasTool(tools, step.Toolbox) {
			continue
		}
		if matchesTrigger(step.Trigger, messages) {
			p.consumed[i] = true
			p.calls++
			return step, p.calls
		}
	}
	return nil, 0
}

func matchesTrigger(trigger string, messages []Message) bool {
	last := messages[len(messages)-1]
	switch {
	case trigger == "":
		return true
	case trigger == "user_message":
		return len(last.ToolResult) == 0
	case strings.HasPrefix(trigger, "tool_result:"):
		name := strings.TrimPrefix(trigger, "tool_result:")
		for _, r := range last.ToolResult {
			if r.ToolName == name || toolNameForID(messages, r.ToolUseID) == name {
				return true
			}
		}
		return false
	case strings.HasPrefix(trigger, "contains:"):
		pattern := strings.ToLower(strings.TrimPrefix(trigger, "contains:"))
		if strings.Contains(strings.ToLower(last.Content), pattern) {
			return true
		}
		for _, r := range last.ToolResult {
			if strings.Contains(strings.ToLower(r.Content), pattern) {
				return true
			}
		}
		return false
	default:
		return strings.Contains(strings.ToLower(last.Content), strings.ToLower(trigger))
	}
}

func toolNameForID(messages []Message, id string) string {
	for _, msg := range messages {
		for _, call := range msg.ToolUse {
			if call.ID == id {
				return call.Name
			}
		}
	}
	return ""
}

func hasTool(tools []ToolDefinition, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func lastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser && len(messages[i].ToolResult) == 0 {
			return messages[i].Content
		}
	}
	return ""
}

func substituteQuery(args map[string]interface{}, query string) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok && s == "{{query}}" {
			out[k] = query
			continue
		}
		out[k] = v
	}
	return out
}
