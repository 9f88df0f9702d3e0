package schema

// StepType identifies the kind of a workflow step.
type StepType string

const (
	StepTypeTrigger   StepType = "trigger"
	StepTypeAction    StepType = "action"
	StepTypeCondition StepType = "condition"
	StepTypeApproval  StepType = "approval"
)

// ErrorStrategy selects how the engine reacts to a failed step.
type ErrorStrategy string

const (
	StrategyStop     ErrorStrategy = "stop"
	StrategyContinue ErrorStrategy = "continue"
	StrategyRetry    ErrorStrategy = "retry"
	StrategyRollback ErrorStrategy = "rollback"
)

// DefaultStepTimeoutMs is applied when a step declares no timeout and its
// tool offers no advisory value.
const DefaultStepTimeoutMs = 30_000

// ErrorHandling configures failure containment for a single step.
type ErrorHandling struct {
	Strategy       ErrorStrategy `json:"strategy,omitempty"`
	MaxRetries     int           `json:"max_retries,omitempty"`
	FallbackStepID string        `json:"fallback_step_id,omitempty"`
}

// ConditionEdge is one guarded branch out of a condition step. The first
// edge whose expression evaluates true wins.
type ConditionEdge struct {
	Expression string `json:"expression"`
	NextStepID string `json:"next_step_id"`
}

// Connections wires a step to its successors in the graph.
type Connections struct {
	SuccessStepID string          `json:"success_step_id,omitempty"`
	FailureStepID string          `json:"failure_step_id,omitempty"`
	Conditions    []ConditionEdge `json:"conditions,omitempty"`
}

// WorkflowStep is a single node of an agent workflow graph.
type WorkflowStep struct {
	ID            string         `json:"id"`
	Type          StepType       `json:"type"`
	Name          string         `json:"name,omitempty"`
	ToolType      string         `json:"tool_type,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	TimeoutMs     int64          `json:"timeout_ms,omitempty"`
	ErrorHandling *ErrorHandling `json:"error_handling,omitempty"`
	Connections   Connections    `json:"connections"`
	MandateID     string         `json:"mandate_id,omitempty"`
	RequiresAuth  bool           `json:"requires_authorization,omitempty"`
}

// Strategy returns the configured error strategy, defaulting to stop.
func (s *WorkflowStep) Strategy() ErrorStrategy {
	if s.ErrorHandling == nil || s.ErrorHandling.Strategy == "" {
		return StrategyStop
	}
	return s.ErrorHandling.Strategy
}

// Gated reports whether the step must pass the mandate gate before running.
func (s *WorkflowStep) Gated() bool {
	return s.Type == StepTypeApproval || s.RequiresAuth
}

// Successors returns every step ID this step can transfer control to.
func (s *WorkflowStep) Successors() []string {
	out := make([]string, 0, 2+len(s.Connections.Conditions))
	for _, edge := range s.Connections.Conditions {
		if edge.NextStepID != "" {
			out = append(out, edge.NextStepID)
		}
	}
	if s.Connections.SuccessStepID != "" {
		out = append(out, s.Connections.SuccessStepID)
	}
	if s.Connections.FailureStepID != "" {
		out = append(out, s.Connections.FailureStepID)
	}
	if s.ErrorHandling != nil && s.ErrorHandling.FallbackStepID != "" {
		out = append(out, s.ErrorHandling.FallbackStepID)
	}
	return out
}

// WorkflowGraph is the executable definition of an agent: a set of steps
// wired by success, failure, and condition edges, rooted at a single trigger.
type WorkflowGraph struct {
	AgentID  string         `json:"agent_id"`
	Version  int            `json:"version"`
	Steps    []WorkflowStep `json:"steps"`
	Defaults map[string]any `json:"defaults,omitempty"`
}

// Step returns the step with the given ID, or nil.
func (g *WorkflowGraph) Step(id string) *WorkflowStep {
	for i := range g.Steps {
		if g.Steps[i].ID == id {
			return &g.Steps[i]
		}
	}
	return nil
}

// Trigger returns the first trigger step, or nil when the graph has none.
func (g *WorkflowGraph) Trigger() *WorkflowStep {
	for i := range g.Steps {
		if g.Steps[i].Type == StepTypeTrigger {
			return &g.Steps[i]
		}
	}
	return nil
}
