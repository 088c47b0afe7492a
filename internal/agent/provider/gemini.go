package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements StreamingProvider on the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a Gemini client for cfg.APIKey.
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	cfg = cfg.withDefaults(DefaultGeminiModel)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, config: cfg}, nil
}

// Name implements Provider.Name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model implements Provider.Model.
func (p *GeminiProvider) Model() string {
	return p.config.Model
}

// Chat implements Provider.Chat for Gemini.
func (p *GeminiProvider) Chat(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition) (*Response, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, convertGeminiMessages(messages), p.generateConfig(systemPrompt, tools))
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	acc := &geminiAccumulator{}
	acc.add(resp, nil)
	return acc.response(), nil
}

// ChatStream implements StreamingProvider.ChatStream for Gemini.
func (p *GeminiProvider) ChatStream(ctx context.Context, systemPrompt string, messages []Message, tools []ToolDefinition, onText TextHandler) (*Response, error) {
	acc := &geminiAccumulator{}
	for resp, err := range p.client.Models.GenerateContentStream(ctx, p.config.Model, convertGeminiMessages(messages), p.generateConfig(systemPrompt, tools)) {
		if err != nil {
			return nil, fmt.Errorf("gemini stream failed: %w", err)
		}
		acc.add(resp, onText)
	}
	return acc.response(), nil
}

func (p *GeminiProvider) generateConfig(systemPrompt string, tools []ToolDefinition) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.config.Temperature)),
		MaxOutputTokens: int32(p.config.MaxTokens),
		Tools:           convertGeminiTools(tools),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return cfg
}

type geminiAccumulator struct {
	text      strings.Builder
	toolCalls []ToolUseBlock
	usage     Usage
}

func (a *geminiAccumulator) add(resp *genai.GenerateContentResponse, onText TextHandler) {
	if resp == nil {
		return
	}
	if resp.UsageMetadata != nil {
		a.usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			a.text.WriteString(part.Text)
			if onText != nil {
				onText(part.Text)
			}
		}
		if part.FunctionCall != nil {
			input, _ := json.Marshal(part.FunctionCall.Args)
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("gemini-%s-%d", part.FunctionCall.Name, len(a.toolCalls))
			}
			a.toolCalls = append(a.toolCalls, ToolUseBlock{ID: id, Name: part.FunctionCall.Name, Input: input})
		}
	}
}

func (a *geminiAccumulator) response() *Response {
	resp := &Response{Content: a.text.String(), ToolCalls: a.toolCalls, Usage: a.usage, StopReason: StopReasonEndTurn}
	if len(a.toolCalls) > 0 {
		resp.StopReason = StopReasonToolUse
	}
	return resp
}

func convertGeminiMessages(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch {
		case len(msg.ToolResult) > 0:
			content := &genai.Content{Role: genai.RoleUser}
			for _, result := range msg.ToolResult {
				response := map[string]any{"output": result.Content}
				if result.IsError {
					response = map[string]any{"error": result.Content}
				}
				content.Parts = append(content.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       result.ToolUseID,
					Name:     result.ToolName,
					Response: response,
				}})
			}
			contents = append(contents, content)

		case msg.Role == RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolUse {
				var args map[string]any
				_ = json.Unmarshal(call.Input, &args)
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: args,
				}})
			}
			contents = append(contents, content)

		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents
}

func convertGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertGeminiSchema(t.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertGeminiSchema(schema map[string]interface{}) *genai.Schema {
	out := &genai.Schema{Type: genai.TypeObject}
	if t, ok := schema["type"].(string); ok {
		out.Type = geminiType(t)
	}
	if d, ok := schema["description"].(string); ok {
		out.Description = d
	}
	out.Required = requiredFields(schema)

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]interface{}); ok {
				out.Properties[name] = convertGeminiSchema(propMap)
			}
		}
	}

	if out.Type == genai.TypeArray {
		if items, ok := schema["items"].(map[string]interface{}); ok {
			out.Items = convertGeminiSchema(items)
		} else {
			out.Items = &genai.Schema{Type: genai.TypeString}
		}
	}
	return out
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
