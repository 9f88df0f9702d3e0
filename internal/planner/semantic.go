package planner

import (
	"fmt"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// longTimeoutMs triggers a warning: a step parked longer than this holds
// the run hostage well past any reasonable tool call.
const longTimeoutMs = 5 * 60 * 1000

// ToolLookup answers whether a tool type is registered. The registry
// satisfies it; nil skips tool existence checks.
type ToolLookup interface {
	Has(name string) bool
}

// validateSemantic performs semantic analysis on the workflow graph.
// Checks: exactly one trigger, duplicate step IDs, tool registration,
// connection targets, condition branches, and fallback references.
func validateSemantic(g *schema.WorkflowGraph, lookup ToolLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	stepIDs := make(map[string]bool, len(g.Steps))
	triggers := 0
	for i := range g.Steps {
		s := &g.Steps[i]
		if stepIDs[s.ID] {
			result.AddError(fmt.Sprintf("steps[%d].id", i), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q", s.ID))
		}
		stepIDs[s.ID] = true
		if s.Type == schema.StepTypeTrigger {
			triggers++
		}
	}

	switch {
	case triggers == 0:
		result.AddError("steps", schema.ErrCodeValidation, "workflow has no trigger step")
	case triggers > 1:
		result.AddError("steps", schema.ErrCodeValidation,
			fmt.Sprintf("workflow has %d trigger steps, expected exactly one", triggers))
	}

	for i := range g.Steps {
		validateStepSemantic(&g.Steps[i], fmt.Sprintf("steps[%d]", i), stepIDs, lookup, result)
	}

	return result
}

// validateStepSemantic checks a single step.
func validateStepSemantic(step *schema.WorkflowStep, path string, stepIDs map[string]bool, lookup ToolLookup, result *schema.ValidationResult) {
	// Tool existence for executable step types.
	if (step.Type == schema.StepTypeAction || step.Type == schema.StepTypeApproval) && lookup != nil {
		if step.ToolType == "" {
			result.AddError(path+".tool_type", schema.ErrCodeValidation,
				fmt.Sprintf("step %q has no tool type", step.ID))
		} else if !lookup.Has(step.ToolType) {
			result.AddError(path+".tool_type", schema.ErrCodeToolUnavailable,
				fmt.Sprintf("tool %q not registered", step.ToolType))
		}
	}

	// Condition steps need at least one guarded branch.
	if step.Type == schema.StepTypeCondition && len(step.Connections.Conditions) == 0 {
		result.AddError(path+".connections.conditions", schema.ErrCodeValidation,
			fmt.Sprintf("condition step %q declares no branches", step.ID))
	}

	// Connection targets must exist.
	checkRef := func(field, target string) {
		if target != "" && !stepIDs[target] {
			result.AddError(path+field, schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent step %q", target))
		}
	}
	checkRef(".connections.success_step_id", step.Connections.SuccessStepID)
	checkRef(".connections.failure_step_id", step.Connections.FailureStepID)
	for j, edge := range step.Connections.Conditions {
		checkRef(fmt.Sprintf(".connections.conditions[%d].next_step_id", j), edge.NextStepID)
	}

	if step.ErrorHandling != nil {
		eh := step.ErrorHandling
		checkRef(".error_handling.fallback_step_id", eh.FallbackStepID)
		if eh.Strategy == schema.StrategyRetry && eh.MaxRetries == 0 {
			result.AddWarning(path+".error_handling.max_retries", schema.ErrCodeValidation,
				fmt.Sprintf("step %q uses retry strategy with max_retries 0", step.ID))
		}
	}

	// Trigger steps start the run; nothing may point at them and they
	// carry no tool.
	if step.Type == schema.StepTypeTrigger && step.ToolType != "" {
		result.AddWarning(path+".tool_type", schema.ErrCodeValidation,
			fmt.Sprintf("trigger step %q declares a tool type, which is ignored", step.ID))
	}

	if step.TimeoutMs > longTimeoutMs {
		result.AddWarning(path+".timeout_ms", schema.ErrCodeValidation,
			fmt.Sprintf("step %q timeout %dms exceeds 5 minutes", step.ID, step.TimeoutMs))
	}
}
