package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IOUser755/AP2-01-sub000/internal/expressions"
	"github.com/IOUser755/AP2-01-sub000/internal/logging"
	"github.com/IOUser755/AP2-01-sub000/internal/planner"
	"github.com/IOUser755/AP2-01-sub000/internal/store"
	"github.com/IOUser755/AP2-01-sub000/internal/streaming"
	"github.com/IOUser755/AP2-01-sub000/internal/tools"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// AgentRepository loads executable graphs and records run outcomes.
// Satisfied by *store.AgentRepository and test fakes.
type AgentRepository interface {
	LoadGraph(ctx context.Context, agentID string) (*schema.WorkflowGraph, error)
	RecordMetrics(ctx context.Context, agentID string, success bool, durationMs int64, cost float64) error
}

// MandateGate is the engine's view of the mandate chain: look up a
// mandate, decide whether a gated step may run, create a pending mandate
// when a gated step has none, and consume the mandate after the step
// succeeds. Satisfied by *mandate.Chain.
type MandateGate interface {
	Get(ctx context.Context, mandateID string) (*schema.Mandate, error)
	Create(ctx context.Context, typ schema.MandateType, content schema.MandateContent, creatorID, previousMandateID string) (*schema.Mandate, error)
	CanExecute(m *schema.Mandate) bool
	Execute(ctx context.Context, mandateID, executorID, result string) (*schema.Mandate, error)
}

// ExecutionSaver persists run outcomes. Optional; satisfied by store.Store.
type ExecutionSaver interface {
	SaveExecution(ctx context.Context, exec *store.Execution) error
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Agents     AgentRepository
	Tools      *tools.Registry
	Evaluator  *expressions.Evaluator
	Mandates   MandateGate // optional: nil fails every gated step
	Events     streaming.EventSink
	Executions ExecutionSaver // optional
	Logger     *slog.Logger
}

// Config tunes engine behavior.
type Config struct {
	// DefaultTimeoutMs applies to steps that declare no timeout and whose
	// tool offers no advisory value. Zero means schema.DefaultStepTimeoutMs.
	DefaultTimeoutMs int64
}

// Engine orchestrates workflow executions: it validates and plans the
// graph, walks it step by step through the tool registry, applies
// per-step error policy, enforces mandate gates, and emits lifecycle
// events. One Engine serves many concurrent executions; each execution
// is strictly sequential internally.
type Engine struct {
	agents    AgentRepository
	tools     *tools.Registry
	validator *planner.Validator
	evaluator *expressions.Evaluator
	mandates  MandateGate
	events    streaming.EventSink
	execs     ExecutionSaver
	logger    *slog.Logger
	cfg       Config

	// mu guards running, the only state shared across executions.
	mu      sync.Mutex
	running map[string]*run
}

// run tracks one in-flight execution for cancellation lookups.
type run struct {
	executionID string
	agentID     string
	cancelled   atomic.Bool
}

// New builds an Engine. Agents, Tools, Evaluator, and Events are required.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Agents == nil {
		return nil, fmt.Errorf("agent repository is required")
	}
	if deps.Tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if deps.Evaluator == nil {
		return nil, fmt.Errorf("expression evaluator is required")
	}
	if deps.Events == nil {
		deps.Events = streaming.NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.DefaultTimeoutMs <= 0 {
		cfg.DefaultTimeoutMs = schema.DefaultStepTimeoutMs
	}
	validator, err := planner.NewValidator(deps.Tools)
	if err != nil {
		return nil, fmt.Errorf("build graph validator: %w", err)
	}
	return &Engine{
		agents:    deps.Agents,
		tools:     deps.Tools,
		validator: validator,
		evaluator: deps.Evaluator,
		mandates:  deps.Mandates,
		events:    deps.Events,
		execs:     deps.Executions,
		logger:    deps.Logger,
		cfg:       cfg,
		running:   make(map[string]*run),
	}, nil
}

// Execute runs the agent's workflow graph to completion and returns the
// full result. Step-level failures are contained by each step's error
// policy and reported inside the result; only pre-execution conditions
// (agent missing or not active) surface as errors.
func (e *Engine) Execute(ctx context.Context, agentID string, req schema.ExecutionRequest) (*schema.ExecutionResult, error) {
	graph, err := e.agents.LoadGraph(ctx, agentID)
	if err != nil {
		return nil, err
	}

	executionID := uuid.NewString()
	started := time.Now().UTC()

	ectx := &schema.ExecutionContext{
		ExecutionID: executionID,
		AgentID:     agentID,
		TenantID:    req.TenantID,
		InitiatorID: req.InitiatorID,
		Variables:   mergeVariables(graph.Defaults, req.Variables),
		Metadata:    req.Metadata,
		StartedAt:   started,
	}

	ctx = logging.WithIDs(ctx, executionID, "", agentID)

	r := &run{executionID: executionID, agentID: agentID}
	e.mu.Lock()
	e.running[executionID] = r
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, executionID)
		e.mu.Unlock()
	}()

	logger := e.logger.With("execution_id", executionID, "agent_id", agentID)
	logger.Info("execution started", "initiator_id", req.InitiatorID)
	e.saveExecution(ctx, ectx, schema.ExecutionRunning, nil)
	e.publish(ctx, ectx, "", schema.TopicExecutionStarted, map[string]any{
		"initiator_id": req.InitiatorID,
	})

	// Validation failure produces a failed result with zero steps, never
	// a partial run.
	if vr := e.validator.Validate(graph); !vr.Valid() {
		result := e.finish(ctx, ectx, &walkState{}, schema.ExecutionFailed,
			schema.NewError(schema.ErrCodeValidation, "workflow graph failed validation").
				WithDetails(map[string]any{"violations": vr.Errors}))
		return result, nil
	}

	state := e.walk(ctx, r, graph, ectx, logger)
	status := e.terminalStatus(ctx, r, state)
	return e.finish(ctx, ectx, state, status, state.abortErr), nil
}

// Cancel marks an in-flight execution cancelled. Cancellation is
// cooperative: the current step finishes (or times out on its own clock)
// and no further step starts.
func (e *Engine) Cancel(executionID string) error {
	e.mu.Lock()
	r, ok := e.running[executionID]
	e.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "execution %q is not running", executionID)
	}
	r.cancelled.Store(true)
	e.logger.Info("execution cancellation requested", "execution_id", executionID)
	return nil
}

// Running returns the IDs of in-flight executions.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) terminalStatus(ctx context.Context, r *run, state *walkState) schema.ExecutionStatus {
	switch {
	case r.cancelled.Load():
		return schema.ExecutionCancelled
	case ctx.Err() == context.DeadlineExceeded:
		return schema.ExecutionTimeout
	case state.abortErr != nil || state.anyFailed:
		return schema.ExecutionFailed
	default:
		return schema.ExecutionCompleted
	}
}

// finish assembles the ExecutionResult, persists it, records agent
// metrics, and emits the terminal event.
func (e *Engine) finish(ctx context.Context, ectx *schema.ExecutionContext, state *walkState, status schema.ExecutionStatus, abortErr *schema.AgentError) *schema.ExecutionResult {
	completed := time.Now().UTC()
	result := &schema.ExecutionResult{
		ExecutionID: ectx.ExecutionID,
		AgentID:     ectx.AgentID,
		Status:      status,
		Steps:       state.trace,
		Variables:   ectx.Variables,
		Error:       abortErr,
		DurationMs:  completed.Sub(ectx.StartedAt).Milliseconds(),
		StartedAt:   ectx.StartedAt,
		CompletedAt: completed,
	}
	result.Tally()

	e.saveExecution(ctx, ectx, status, result)

	success := status == schema.ExecutionCompleted
	if err := e.agents.RecordMetrics(ctx, ectx.AgentID, success, result.DurationMs, state.cost); err != nil {
		e.logger.Warn("record agent metrics failed", "agent_id", ectx.AgentID, "error", err)
	}

	topic := schema.TopicExecutionCompleted
	switch status {
	case schema.ExecutionCancelled:
		topic = schema.TopicExecutionCancelled
	case schema.ExecutionFailed, schema.ExecutionTimeout:
		topic = schema.TopicExecutionFailed
	}
	e.publish(ctx, ectx, "", topic, map[string]any{
		"status":      string(status),
		"duration_ms": result.DurationMs,
		"metrics":     result.Metrics,
	})
	e.logger.Info("execution finished",
		"execution_id", ectx.ExecutionID,
		"status", status,
		"steps", len(result.Steps),
		"duration_ms", result.DurationMs)
	return result
}

func (e *Engine) saveExecution(ctx context.Context, ectx *schema.ExecutionContext, status schema.ExecutionStatus, result *schema.ExecutionResult) {
	if e.execs == nil {
		return
	}
	err := e.execs.SaveExecution(ctx, &store.Execution{
		ID:          ectx.ExecutionID,
		AgentID:     ectx.AgentID,
		TenantID:    ectx.TenantID,
		InitiatorID: ectx.InitiatorID,
		Status:      status,
		Result:      result,
		CreatedAt:   ectx.StartedAt,
	})
	if err != nil {
		e.logger.Warn("persist execution failed", "execution_id", ectx.ExecutionID, "error", err)
	}
}

// publish delivers an event to the sink. Fire-and-forget: sink errors are
// logged and never block the run.
func (e *Engine) publish(ctx context.Context, ectx *schema.ExecutionContext, stepID, topic string, payload any) {
	err := e.events.Publish(ctx, streaming.Event{
		ExecutionID: ectx.ExecutionID,
		AgentID:     ectx.AgentID,
		StepID:      stepID,
		Topic:       topic,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		e.logger.Debug("event publish failed", "topic", topic, "error", err)
	}
}

// mergeVariables shallow-merges caller variables over graph defaults;
// caller values win.
func mergeVariables(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
