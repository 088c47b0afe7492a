package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Func adapts a plain function into a Tool.
type Func struct {
	name        string
	description string
	schema      map[string]interface{}
	fn          func(ctx context.Context, input json.RawMessage) (*Result, error)
}

// NewFunc creates a tool that runs fn.
func NewFunc(name, description string, schema map[string]interface{}, fn func(ctx context.Context, input json.RawMessage) (*Result, error)) *Func {
	return &Func{name: name, description: description, schema: schema, fn: fn}
}

func (t *Func) Name() string                        { return t.name }
func (t *Func) Description() string                 { return t.description }
func (t *Func) InputSchema() map[string]interface{} { return t.schema }

func (t *Func) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	return t.fn(ctx, input)
}

// Decode unmarshals tool input into T. Empty input decodes to the zero value.
func Decode[T any](input json.RawMessage) (T, error) {
	var params T
	if len(input) == 0 || string(input) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return params, fmt.Errorf("invalid input: %w", err)
	}
	return params, nil
}

// ObjectSchema builds a JSON object schema from properties and required names.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Property builds a JSON schema property of the given type.
func Property(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}
