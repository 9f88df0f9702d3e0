package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/IOUser755/AP2-01-sub000/internal/tools"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// rollback compensates completed steps in reverse chronological order.
// Only tools implementing RollbackTool participate; others are skipped.
// The walk is best effort: a compensation failure is recorded and the
// walk continues with the remaining steps.
func (e *Engine) rollback(ctx context.Context, ectx *schema.ExecutionContext, state *walkState, logger *slog.Logger) {
	failures := 0
	for i := len(state.completed) - 1; i >= 0; i-- {
		done := state.completed[i]
		if done.step.ToolType == "" {
			continue
		}
		tool, err := e.tools.Get(done.step.ToolType)
		if err != nil {
			continue
		}
		rb, ok := tool.(tools.RollbackTool)
		if !ok {
			continue
		}

		started := time.Now().UTC()
		if err := rb.Rollback(ctx, done.output, ectx); err != nil {
			failures++
			logger.Warn("rollback step failed",
				"step_id", done.step.ID, "tool", done.step.ToolType, "error", err)
			e.recordStep(ctx, ectx, state, schema.StepResult{
				StepID: done.step.ID,
				Status: schema.StepFailure,
				Error: schema.NewErrorf(schema.ErrCodeRollbackPartial,
					"rollback of step %q failed", done.step.ID).WithCause(err).Error(),
				DurationMs: time.Since(started).Milliseconds(),
				Timestamp:  time.Now().UTC(),
			})
			continue
		}
		logger.Info("rolled back step", "step_id", done.step.ID, "tool", done.step.ToolType)
	}

	e.publish(ctx, ectx, "", schema.TopicExecutionRolledBack, map[string]any{
		"steps_compensated": len(state.completed),
		"failures":          failures,
	})
}
