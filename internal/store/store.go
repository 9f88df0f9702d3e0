package store

import (
	"context"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) error
	UpdateAgentMetrics(ctx context.Context, id string, success bool, durationMs int64, cost float64) error
	ListAgents(ctx context.Context, filter AgentFilter) ([]*Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// Mandates
	PutMandate(ctx context.Context, m *schema.Mandate) error
	GetMandate(ctx context.Context, mandateID string) (*schema.Mandate, error)
	ListChain(ctx context.Context, chainID string) ([]*schema.Mandate, error)

	// Executions
	SaveExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Execution Events (append-only)
	AppendEvent(ctx context.Context, event *ExecutionEvent) error
	GetEvents(ctx context.Context, executionID string, since int64) ([]*ExecutionEvent, error)

	// Scheduled Jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
