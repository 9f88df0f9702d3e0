package planner

import (
	"context"
	"testing"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exprEval evaluates an expression by table lookup.
type exprEval map[string]bool

func (e exprEval) Evaluate(_ context.Context, expression string, _ map[string]any) bool {
	return e[expression]
}

func stepIDs(steps []*schema.WorkflowStep) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	return ids
}

func TestPlanOrder_Linear(t *testing.T) {
	order, err := PlanOrder(linearGraph())
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "a", "b"}, stepIDs(order))
}

func TestPlanOrder_NoTrigger(t *testing.T) {
	g := linearGraph()
	g.Steps = g.Steps[1:]

	_, err := PlanOrder(g)
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeValidation, agErr.Code)
}

func TestPlanOrder_DiamondVisitsOnce(t *testing.T) {
	// start -> decide -> {left, right} -> join
	g := &schema.WorkflowGraph{
		AgentID: "agent-1",
		Steps: []schema.WorkflowStep{
			{ID: "start", Type: schema.StepTypeTrigger,
				Connections: schema.Connections{SuccessStepID: "decide"}},
			{ID: "decide", Type: schema.StepTypeCondition,
				Connections: schema.Connections{Conditions: []schema.ConditionEdge{
					{Expression: "amount > 100", NextStepID: "left"},
					{Expression: "amount <= 100", NextStepID: "right"},
				}}},
			{ID: "left", Type: schema.StepTypeAction, ToolType: "api_call",
				Connections: schema.Connections{SuccessStepID: "join"}},
			{ID: "right", Type: schema.StepTypeAction, ToolType: "api_call",
				Connections: schema.Connections{SuccessStepID: "join"}},
			{ID: "join", Type: schema.StepTypeAction, ToolType: "email"},
		},
	}

	order, err := PlanOrder(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "decide", "left", "right", "join"}, stepIDs(order))
}

func TestPlanOrder_SkipsDisconnected(t *testing.T) {
	g := linearGraph()
	g.Steps = append(g.Steps, schema.WorkflowStep{ID: "orphan", Type: schema.StepTypeAction})

	order, err := PlanOrder(g)
	require.NoError(t, err)
	assert.NotContains(t, stepIDs(order), "orphan")
}

func TestNextStep_SuccessEdge(t *testing.T) {
	g := linearGraph()

	next := NextStep(context.Background(), nil, g, g.Step("a"), nil, false)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)
}

func TestNextStep_BranchEnd(t *testing.T) {
	g := linearGraph()

	assert.Nil(t, NextStep(context.Background(), nil, g, g.Step("b"), nil, false))
}

func TestNextStep_FailureEdge(t *testing.T) {
	g := linearGraph()
	g.Steps[1].Connections.FailureStepID = "b"

	next := NextStep(context.Background(), nil, g, g.Step("a"), nil, true)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)
}

func TestNextStep_FailureWithoutEdgeEnds(t *testing.T) {
	g := linearGraph()

	assert.Nil(t, NextStep(context.Background(), nil, g, g.Step("a"), nil, true))
}

func TestNextStep_ConditionRouting(t *testing.T) {
	g := &schema.WorkflowGraph{
		AgentID: "agent-1",
		Steps: []schema.WorkflowStep{
			{ID: "start", Type: schema.StepTypeTrigger,
				Connections: schema.Connections{SuccessStepID: "decide"}},
			{ID: "decide", Type: schema.StepTypeCondition,
				Connections: schema.Connections{
					SuccessStepID: "fallback",
					Conditions: []schema.ConditionEdge{
						{Expression: "high", NextStepID: "escalate"},
						{Expression: "low", NextStepID: "approve"},
					},
				}},
			{ID: "escalate", Type: schema.StepTypeAction, ToolType: "email"},
			{ID: "approve", Type: schema.StepTypeAction, ToolType: "api_call"},
			{ID: "fallback", Type: schema.StepTypeAction, ToolType: "api_call"},
		},
	}
	decide := g.Step("decide")

	t.Run("first true branch wins", func(t *testing.T) {
		next := NextStep(context.Background(), exprEval{"high": true, "low": true}, g, decide, nil, false)
		require.NotNil(t, next)
		assert.Equal(t, "escalate", next.ID)
	})

	t.Run("later branch when earlier is false", func(t *testing.T) {
		next := NextStep(context.Background(), exprEval{"low": true}, g, decide, nil, false)
		require.NotNil(t, next)
		assert.Equal(t, "approve", next.ID)
	})

	t.Run("success edge is the fallthrough", func(t *testing.T) {
		next := NextStep(context.Background(), exprEval{}, g, decide, nil, false)
		require.NotNil(t, next)
		assert.Equal(t, "fallback", next.ID)
	})
}
