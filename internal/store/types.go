package store

import (
	"encoding/json"
	"time"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// AgentStatus is the lifecycle state of an agent definition. Only active
// agents may be executed.
type AgentStatus string

const (
	AgentDraft    AgentStatus = "draft"
	AgentActive   AgentStatus = "active"
	AgentPaused   AgentStatus = "paused"
	AgentArchived AgentStatus = "archived"
)

// AgentMetrics accumulates execution outcomes for one agent.
type AgentMetrics struct {
	Executions      int64      `json:"executions"`
	Successes       int64      `json:"successes"`
	Failures        int64      `json:"failures"`
	TotalDurationMs int64      `json:"total_duration_ms"`
	TotalCost       float64    `json:"total_cost"`
	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
}

// Agent is the persisted representation of an agent: a named, versioned
// workflow graph plus lifecycle status and accumulated metrics.
type Agent struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	TenantID  string               `json:"tenant_id,omitempty"`
	Status    AgentStatus          `json:"status"`
	Graph     schema.WorkflowGraph `json:"graph"`
	Metrics   AgentMetrics         `json:"metrics"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Executable reports whether the agent's lifecycle allows running it.
func (a *Agent) Executable() bool { return a.Status == AgentActive }

// Execution is the persisted outcome of one run.
type Execution struct {
	ID          string                  `json:"id"`
	AgentID     string                  `json:"agent_id"`
	TenantID    string                  `json:"tenant_id,omitempty"`
	InitiatorID string                  `json:"initiator_id,omitempty"`
	Status      schema.ExecutionStatus  `json:"status"`
	Result      *schema.ExecutionResult `json:"result,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// ExecutionEvent is an immutable entry in the per-execution event log.
type ExecutionEvent struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	StepID      string          `json:"step_id,omitempty"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

// ScheduledJob is a cron-triggered agent execution.
type ScheduledJob struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	CronExpression string         `json:"cron_expression"`
	Variables      map[string]any `json:"variables,omitempty"`
	InitiatorID    string         `json:"initiator_id,omitempty"`
	Enabled        bool           `json:"enabled"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastRunStatus  string         `json:"last_run_status,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// --- Filter and update types ---

// AgentFilter specifies criteria for listing agents.
type AgentFilter struct {
	Status   *AgentStatus `json:"status,omitempty"`
	TenantID string       `json:"tenant_id,omitempty"`
	Limit    int          `json:"limit,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	AgentID string                  `json:"agent_id,omitempty"`
	Status  *schema.ExecutionStatus `json:"status,omitempty"`
	Since   *time.Time              `json:"since,omitempty"`
	Limit   int                     `json:"limit,omitempty"`
	Offset  int                     `json:"offset,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled *bool  `json:"enabled,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
