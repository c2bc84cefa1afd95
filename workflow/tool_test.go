package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conceptArgs struct {
	Concept string `json:"concept" jsonschema:"the full ad concept"`
	Count   int    `json:"count,omitempty"`
}

func newConceptTool(t *testing.T) *FuncTool {
	t.Helper()
	tool, err := NewFuncTool("concept", "echo the concept",
		func(_ context.Context, tc *ToolContext, args conceptArgs) (string, error) {
			tc.Shared.ImagePrompt = args.Concept
			return args.Concept, nil
		})
	require.NoError(t, err)
	return tool
}

func TestFuncTool_Schema(t *testing.T) {
	tool := newConceptTool(t)

	assert.Equal(t, "concept", tool.Name())
	assert.Equal(t, "echo the concept", tool.Description())
	params := tool.Parameters()
	assert.Equal(t, "object", params["type"])
	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "concept")
	require.Contains(t, props, "count")
	concept := props["concept"].(map[string]any)
	assert.Equal(t, "string", concept["type"])
	assert.Equal(t, "the full ad concept", concept["description"])
	assert.Contains(t, params["required"], "concept")
}

func TestFuncTool_Call(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		want    string
		wantErr error
	}{
		{name: "valid", args: `{"concept":"latte art"}`, want: "latte art"},
		{name: "trailing comma repaired", args: `{"concept":"latte art",}`, want: "latte art"},
		{name: "unterminated object repaired", args: `{"concept":"latte art"`, want: "latte art"},
		{name: "blank input lacks required field", args: ``, wantErr: ErrInvalidArguments},
		{name: "missing required field", args: `{}`, wantErr: ErrInvalidArguments},
		{name: "optional field omitted", args: `{"concept":"latte art"}`, want: "latte art"},
		{name: "wrong type", args: `{"concept":42}`, wantErr: ErrInvalidArguments},
		{name: "unknown field", args: `{"concept":"latte art","colour":"red"}`, wantErr: ErrInvalidArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := newConceptTool(t)
			shared := &SharedContext{}
			out, err := tool.Call(context.Background(), &ToolContext{Shared: shared}, tt.args)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, shared.ImagePrompt, "function must not run")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
			assert.Equal(t, tt.want, shared.ImagePrompt)
		})
	}
}

func TestNewFuncTool_Invalid(t *testing.T) {
	_, err := NewFuncTool[conceptArgs]("", "x", func(context.Context, *ToolContext, conceptArgs) (string, error) { return "", nil })
	assert.Error(t, err)

	_, err = NewFuncTool[conceptArgs]("x", "x", nil)
	assert.Error(t, err)
}

func TestFuncTool_NoArguments(t *testing.T) {
	tool := MustNewFuncTool("ping", "", func(context.Context, *ToolContext, struct{}) (string, error) {
		return "pong", nil
	})
	for _, args := range []string{``, `{}`, ` `} {
		out, err := tool.Call(context.Background(), &ToolContext{}, args)
		require.NoError(t, err, args)
		assert.Equal(t, "pong", out)
	}
}
