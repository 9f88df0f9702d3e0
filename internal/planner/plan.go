package planner

import (
	"context"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// ConditionEvaluator decides guarded branches during traversal.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, expression string, vars map[string]any) bool
}

// PlanOrder computes the deterministic traversal order: BFS from the
// trigger following success, failure, condition, and fallback edges,
// visiting each step at most once. Branch edges are explored in
// declaration order (conditions first, then success, failure, fallback).
func PlanOrder(g *schema.WorkflowGraph) ([]*schema.WorkflowStep, error) {
	trigger := g.Trigger()
	if trigger == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow has no trigger step")
	}

	order := make([]*schema.WorkflowStep, 0, len(g.Steps))
	visited := map[string]bool{trigger.ID: true}
	queue := []*schema.WorkflowStep{trigger}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range current.Successors() {
			if visited[next] {
				continue
			}
			step := g.Step(next)
			if step == nil {
				continue
			}
			visited[next] = true
			queue = append(queue, step)
		}
	}

	return order, nil
}

// NextStep returns the step to run after current, or nil when the branch
// ends.
//
// Condition steps take the first branch whose expression evaluates true;
// with no match the success edge is the fallthrough. Failed steps follow
// the failure edge when one exists. Everything else follows the success
// edge.
func NextStep(ctx context.Context, eval ConditionEvaluator, g *schema.WorkflowGraph, current *schema.WorkflowStep, vars map[string]any, failed bool) *schema.WorkflowStep {
	if failed {
		if current.Connections.FailureStepID == "" {
			return nil
		}
		return g.Step(current.Connections.FailureStepID)
	}

	if current.Type == schema.StepTypeCondition && eval != nil {
		for _, edge := range current.Connections.Conditions {
			if eval.Evaluate(ctx, edge.Expression, vars) {
				return g.Step(edge.NextStepID)
			}
		}
	}

	if current.Connections.SuccessStepID == "" {
		return nil
	}
	return g.Step(current.Connections.SuccessStepID)
}
