package tools

import (
	"context"

	"github.com/IOUser755/AP2-01-sub000/internal/expressions"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// ConditionTool implements the "condition" tool: it evaluates a boolean
// expression against the variable scope and reports the verdict as
// output. Routing on the verdict is the engine's job, not the tool's.
type ConditionTool struct {
	eval *expressions.Evaluator
}

// NewConditionTool creates a new condition tool.
func NewConditionTool(eval *expressions.Evaluator) *ConditionTool {
	return &ConditionTool{eval: eval}
}

func (t *ConditionTool) Name() string          { return "condition" }
func (t *ConditionTool) Category() string      { return "logic" }
func (t *ConditionTool) Permissions() []string { return nil }

func (t *ConditionTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "expression", Type: ParamString, Required: true},
	}
}

func (t *ConditionTool) Validate(map[string]any) error { return nil }

func (t *ConditionTool) Execute(ctx context.Context, params map[string]any, ectx *schema.ExecutionContext) (map[string]any, error) {
	expression := stringParam(params, "expression", "")

	var vars map[string]any
	if ectx != nil {
		vars = ectx.Variables
	}

	return map[string]any{
		"result":     t.eval.Evaluate(ctx, expression, vars),
		"expression": expression,
	}, nil
}

var _ Tool = (*ConditionTool)(nil)
