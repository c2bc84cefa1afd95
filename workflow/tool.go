package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ToolContext is handed to every tool call.
type ToolContext struct {
	// Shared is the session's SharedContext for this turn. Writes become
	// visible to later specialists once the turn completes.
	Shared     *SharedContext
	Specialist string
	CallID     string
	Artifacts  *Artifacts
}

// Tool is a capability a specialist may invoke through the model.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON Schema of the arguments object.
	Parameters() map[string]any
	Call(ctx context.Context, tc *ToolContext, args string) (string, error)
}

// ToolSpec is what a model sees of a tool.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

var _ Tool = (*FuncTool)(nil)

// FuncTool adapts a typed Go function into a Tool.
type FuncTool struct {
	name        string
	description string
	params      map[string]any
	invoke      func(ctx context.Context, tc *ToolContext, args string) (string, error)
}

// NewFuncTool derives the argument schema from Args.
func NewFuncTool[Args any](name, description string, fn func(ctx context.Context, tc *ToolContext, args Args) (string, error)) (*FuncTool, error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %s: function is required", name)
	}
	schema, err := jsonschema.For[Args](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", name, err)
	}
	params, err := schemaToMap(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: schema: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("tool %s: resolve schema: %w", name, err)
	}
	return &FuncTool{
		name:        name,
		description: description,
		params:      params,
		invoke: func(ctx context.Context, tc *ToolContext, raw string) (string, error) {
			data, err := decodeArgs(raw)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrMalformedArguments, name, err)
			}
			var instance any
			if err := json.Unmarshal(data, &instance); err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrMalformedArguments, name, err)
			}
			if err := resolved.Validate(instance); err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
			}
			var v Args
			if err := json.Unmarshal(data, &v); err != nil {
				return "", fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
			}
			return fn(ctx, tc, v)
		},
	}, nil
}

func MustNewFuncTool[Args any](name, description string, fn func(ctx context.Context, tc *ToolContext, args Args) (string, error)) *FuncTool {
	t, err := NewFuncTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *FuncTool) Name() string               { return t.name }
func (t *FuncTool) Description() string        { return t.description }
func (t *FuncTool) Parameters() map[string]any { return t.params }

func (t *FuncTool) Call(ctx context.Context, tc *ToolContext, args string) (string, error) {
	return t.invoke(ctx, tc, args)
}

func schemaToMap(s *jsonschema.Schema) (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// decodeArgs returns model-produced JSON as valid JSON, repairing it once on
// a syntax error. Blank input means no arguments.
func decodeArgs(raw string) ([]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return []byte("{}"), nil
	}
	if json.Valid([]byte(raw)) {
		return []byte(raw), nil
	}
	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(fixed)) {
		return nil, errors.New("arguments are not valid JSON")
	}
	return []byte(fixed), nil
}
