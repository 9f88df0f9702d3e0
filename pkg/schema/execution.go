package schema

import "time"

// ExecutionStatus is the terminal or in-flight state of a workflow run.
type ExecutionStatus string

const (
	ExecutionCreated   ExecutionStatus = "created"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionTimeout   ExecutionStatus = "timeout"
)

// StepStatus is the outcome of a single step attempt.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailure StepStatus = "failure"
	StepSkipped StepStatus = "skipped"
)

// ExecutionRequest carries caller-supplied inputs for one run.
type ExecutionRequest struct {
	TenantID    string            `json:"tenant_id,omitempty"`
	InitiatorID string            `json:"initiator_id,omitempty"`
	Variables   map[string]any    `json:"variables,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ExecutionContext is the mutable per-run state threaded through the step
// loop. Variables accumulate step outputs as the run progresses.
type ExecutionContext struct {
	ExecutionID string            `json:"execution_id"`
	AgentID     string            `json:"agent_id"`
	TenantID    string            `json:"tenant_id,omitempty"`
	InitiatorID string            `json:"initiator_id,omitempty"`
	Variables   map[string]any    `json:"variables"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
}

// StepResult records one step attempt. Results are append-only: retries
// produce one entry per attempt and late results of cancelled runs are
// still recorded.
type StepResult struct {
	StepID     string         `json:"step_id"`
	Status     StepStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ExecutionMetrics counts step results by outcome.
type ExecutionMetrics struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ExecutionResult is the full record of a finished (or terminated) run.
type ExecutionResult struct {
	ExecutionID string           `json:"execution_id"`
	AgentID     string           `json:"agent_id"`
	Status      ExecutionStatus  `json:"status"`
	Steps       []StepResult     `json:"steps"`
	Variables   map[string]any   `json:"variables,omitempty"`
	Metrics     ExecutionMetrics `json:"metrics"`
	Error       *AgentError      `json:"error,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Tally recomputes Metrics from the recorded step results. The trace
// carries one entry per attempt, so each step is counted once by its
// final outcome: a step that fails and then succeeds within its retry
// budget is a successful step.
func (r *ExecutionResult) Tally() {
	final := make(map[string]StepStatus, len(r.Steps))
	order := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		if _, seen := final[s.StepID]; !seen {
			order = append(order, s.StepID)
		}
		final[s.StepID] = s.Status
	}

	m := ExecutionMetrics{Total: len(order)}
	for _, id := range order {
		switch final[id] {
		case StepSuccess:
			m.Success++
		case StepFailure:
			m.Failed++
		case StepSkipped:
			m.Skipped++
		}
	}
	r.Metrics = m
}
