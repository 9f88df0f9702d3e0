package tools

import (
	"context"

	"github.com/IOUser755/AP2-01-sub000/internal/expressions"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// TransformTool implements the "data_transform" tool: it runs a jq query
// over an input object (or the full variable scope when no input is
// given) and returns the result. The jq environment is sandboxed.
type TransformTool struct {
	jq *expressions.GoJQEngine
}

// NewTransformTool creates a new data_transform tool.
func NewTransformTool() *TransformTool {
	return &TransformTool{jq: expressions.NewGoJQEngine()}
}

func (t *TransformTool) Name() string          { return "data_transform" }
func (t *TransformTool) Category() string      { return "data" }
func (t *TransformTool) Permissions() []string { return nil }

func (t *TransformTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "query", Type: ParamString, Required: true, Description: "jq program to apply."},
		{Name: "input", Type: ParamObject, Description: "Input object; defaults to the variable scope."},
		{Name: "output_key", Type: ParamString, Default: "result"},
	}
}

func (t *TransformTool) Validate(map[string]any) error { return nil }

func (t *TransformTool) Execute(ctx context.Context, params map[string]any, ectx *schema.ExecutionContext) (map[string]any, error) {
	query := stringParam(params, "query", "")
	outputKey := stringParam(params, "output_key", "result")

	input, _ := params["input"].(map[string]any)
	if input == nil && ectx != nil {
		input = ectx.Variables
	}
	if input == nil {
		input = map[string]any{}
	}

	out, err := t.jq.EvaluateNormalized(ctx, query, input)
	if err != nil {
		return nil, err
	}

	return map[string]any{outputKey: out}, nil
}

var _ Tool = (*TransformTool)(nil)
