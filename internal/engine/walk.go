package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IOUser755/AP2-01-sub000/internal/expressions"
	"github.com/IOUser755/AP2-01-sub000/internal/logging"
	"github.com/IOUser755/AP2-01-sub000/internal/planner"
	"github.com/IOUser755/AP2-01-sub000/internal/tools"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// walkState accumulates the outcome of one execution's step loop.
type walkState struct {
	trace     []schema.StepResult
	completed []completedStep
	anyFailed bool
	abortErr  *schema.AgentError
	cost      float64
}

// completedStep pairs a successful step with its output for rollback.
type completedStep struct {
	step   *schema.WorkflowStep
	output map[string]any
}

type stepOutcome struct {
	ok    bool
	abort *schema.AgentError
}

// walk runs the step loop: starting from the trigger it follows edges via
// the planner, executing each step through the tool registry and applying
// its error policy on failure. The loop is strictly sequential; the
// cancellation flag is checked between steps only.
func (e *Engine) walk(ctx context.Context, r *run, g *schema.WorkflowGraph, ectx *schema.ExecutionContext, logger *slog.Logger) *walkState {
	state := &walkState{}

	order, err := planner.PlanOrder(g)
	if err != nil {
		state.abortErr = toAgentError(err)
		return state
	}
	position := make(map[string]int, len(order))
	for i, s := range order {
		position[s.ID] = i
	}

	// The trigger performs no work; it anchors the trace.
	trigger := g.Trigger()
	e.recordStep(ctx, ectx, state, schema.StepResult{
		StepID:    trigger.ID,
		Status:    schema.StepSuccess,
		Timestamp: time.Now().UTC(),
	})

	current := trigger
	failed := false
	var pending *schema.WorkflowStep

	// Validation rejects cycles through any edge kind, fallback edges
	// included. The guard below keeps the loop bounded regardless: each
	// step's fallback is taken at most once per run.
	fallbackTaken := make(map[string]bool)

	for {
		if r.cancelled.Load() || ctx.Err() != nil {
			return state
		}

		if pending == nil {
			pending = planner.NextStep(ctx, e.evaluator, g, current, ectx.Variables, failed)
		}
		if pending == nil {
			return state
		}
		step := pending
		pending = nil

		outcome := e.runStep(ctx, r, step, ectx, state, logger)
		if outcome.abort != nil {
			state.abortErr = outcome.abort
			return state
		}
		if outcome.ok {
			current, failed = step, false
			continue
		}

		state.anyFailed = true
		current, failed = step, true

		if eh := step.ErrorHandling; eh != nil && eh.FallbackStepID != "" && !fallbackTaken[step.ID] {
			fallbackTaken[step.ID] = true
			pending = g.Step(eh.FallbackStepID)
			failed = false
			continue
		}

		switch step.Strategy() {
		case schema.StrategyContinue:
			// Proceed to the next planned step without branching.
			if idx, ok := position[step.ID]; ok && idx+1 < len(order) {
				pending = order[idx+1]
				failed = false
				continue
			}
			return state
		case schema.StrategyRollback:
			e.rollback(ctx, ectx, state, logger)
			return state
		default:
			// stop and exhausted retry: the declared failure edge, if
			// any, is the only way forward.
			continue
		}
	}
}

// runStep executes one step, including its retry attempts. Every attempt
// appends its own StepResult to the trace.
func (e *Engine) runStep(ctx context.Context, r *run, step *schema.WorkflowStep, ectx *schema.ExecutionContext, state *walkState, logger *slog.Logger) stepOutcome {
	attempts := 1
	if step.Strategy() == schema.StrategyRetry && step.ErrorHandling != nil && step.ErrorHandling.MaxRetries > 0 {
		attempts = step.ErrorHandling.MaxRetries + 1
	}

	var lastErr *schema.AgentError
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if r.cancelled.Load() || ctx.Err() != nil {
				break
			}
			logger.Info("retrying step", "step_id", step.ID, "attempt", attempt+1)
		}

		output, stepErr := e.attemptStep(ctx, step, ectx, state)
		if stepErr == nil {
			mergeOutput(ectx.Variables, output)
			if cost, ok := numericCost(output); ok {
				state.cost += cost
			}
			if step.Gated() && step.MandateID != "" {
				e.consumeMandate(ctx, step, ectx, logger)
			}
			return stepOutcome{ok: true}
		}

		lastErr = stepErr
		if stepErr.Code == schema.ErrCodeToolUnavailable {
			// A misconfigured tool type aborts the whole run.
			return stepOutcome{abort: stepErr.WithStep(step.ID)}
		}
		if !e.retryable(step, stepErr) {
			break
		}
	}

	if lastErr != nil && attempts > 1 {
		logger.Warn("step failed after retries",
			"step_id", step.ID, "attempts", attempts, "error", lastErr.Message)
	}
	return stepOutcome{}
}

// attemptStep performs a single attempt: parameter resolution, the
// mandate gate, and the tool call raced against the step timeout.
func (e *Engine) attemptStep(ctx context.Context, step *schema.WorkflowStep, ectx *schema.ExecutionContext, state *walkState) (map[string]any, *schema.AgentError) {
	started := time.Now().UTC()
	e.publish(ctx, ectx, step.ID, schema.TopicStepStarted, map[string]any{
		"type": string(step.Type),
		"tool": step.ToolType,
	})

	fail := func(err *schema.AgentError) (map[string]any, *schema.AgentError) {
		e.recordStep(ctx, ectx, state, schema.StepResult{
			StepID:     step.ID,
			Status:     schema.StepFailure,
			Error:      err.Message,
			DurationMs: time.Since(started).Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
		return nil, err
	}

	if step.Gated() {
		if gateErr := e.checkMandate(ctx, step, ectx); gateErr != nil {
			return fail(gateErr)
		}
	}

	// Steps without a tool (condition routing nodes) succeed in place;
	// their branches are taken by the planner.
	if step.ToolType == "" {
		e.recordStep(ctx, ectx, state, schema.StepResult{
			StepID:     step.ID,
			Status:     schema.StepSuccess,
			DurationMs: time.Since(started).Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
		state.completed = append(state.completed, completedStep{step: step})
		return nil, nil
	}

	resolved := expressions.Substitute(step.Parameters, ectx.Variables)

	timeout := e.stepTimeout(step)
	toolCtx, cancel := context.WithTimeout(logging.WithStepID(ctx, step.ID), timeout)
	defer cancel()

	type toolReturn struct {
		output map[string]any
		err    error
	}
	done := make(chan toolReturn, 1)
	go func() {
		output, err := e.tools.Execute(toolCtx, step.ToolType, resolved, ectx)
		done <- toolReturn{output: output, err: err}
	}()

	var output map[string]any
	var execErr error
	select {
	case ret := <-done:
		output, execErr = ret.output, ret.err
	case <-toolCtx.Done():
		// The timer wins independent of tool cooperation. The goroutine's
		// late return lands in the buffered channel and is dropped.
		if errors.Is(toolCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			execErr = schema.NewErrorf(schema.ErrCodeTimeout,
				"step %q exceeded %s timeout", step.ID, timeout)
		} else {
			execErr = schema.NewError(schema.ErrCodeCancelled, "execution context closed").
				WithCause(ctx.Err())
		}
	}

	if execErr != nil {
		return fail(toAgentError(execErr))
	}

	e.recordStep(ctx, ectx, state, schema.StepResult{
		StepID:     step.ID,
		Status:     schema.StepSuccess,
		Output:     output,
		DurationMs: time.Since(started).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	state.completed = append(state.completed, completedStep{step: step, output: output})
	return output, nil
}

// stepTimeout resolves the effective timeout: the step's declaration, the
// tool's advisory default, then the engine default.
func (e *Engine) stepTimeout(step *schema.WorkflowStep) time.Duration {
	ms := step.TimeoutMs
	if ms <= 0 {
		if tool, err := e.tools.Get(step.ToolType); err == nil {
			if adv, ok := tool.(tools.Advisory); ok {
				ms = adv.DefaultTimeoutMs()
			}
		}
	}
	if ms <= 0 {
		ms = e.cfg.DefaultTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// recordStep appends a result to the trace and emits the step event.
// Results are append-only: one entry per attempt, late entries included.
func (e *Engine) recordStep(ctx context.Context, ectx *schema.ExecutionContext, state *walkState, result schema.StepResult) {
	state.trace = append(state.trace, result)
	topic := schema.TopicStepCompleted
	if result.Status == schema.StepFailure {
		topic = schema.TopicStepFailed
	}
	e.publish(ctx, ectx, result.StepID, topic, result)
}

func mergeOutput(vars map[string]any, output map[string]any) {
	for k, v := range output {
		vars[k] = v
	}
}

func numericCost(output map[string]any) (float64, bool) {
	switch v := output["cost"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func toAgentError(err error) *schema.AgentError {
	var agErr *schema.AgentError
	if errors.As(err, &agErr) {
		return agErr
	}
	return schema.NewError(schema.ErrCodeExecution, err.Error()).WithCause(err)
}
