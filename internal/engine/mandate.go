package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// checkMandate enforces the gate on approval steps before the tool runs.
// A step without an attached mandate gets a pending one created so an
// operator can approve it; the step itself fails this run.
func (e *Engine) checkMandate(ctx context.Context, step *schema.WorkflowStep, ectx *schema.ExecutionContext) *schema.AgentError {
	if e.mandates == nil {
		return schema.NewErrorf(schema.ErrCodeMandateGate,
			"step %q requires a mandate but no mandate chain is configured", step.ID).
			WithStep(step.ID)
	}

	if step.MandateID == "" {
		content := schema.MandateContent{
			Intent: fmt.Sprintf("approve step %q of agent %s", step.ID, ectx.AgentID),
			Authorization: schema.Authorization{
				RequiresApproval: true,
			},
		}
		m, err := e.mandates.Create(ctx, schema.MandateApproval, content, ectx.InitiatorID, "")
		if err != nil {
			return toAgentError(err).WithStep(step.ID)
		}
		e.publish(ctx, ectx, step.ID, schema.TopicMandateCreated, map[string]any{
			"mandate_id": m.MandateID,
			"type":       string(m.Type),
		})
		return schema.NewErrorf(schema.ErrCodeMandateGate,
			"step %q is awaiting approval of mandate %s", step.ID, m.MandateID).
			WithStep(step.ID).
			WithDetails(map[string]any{"mandate_id": m.MandateID})
	}

	m, err := e.mandates.Get(ctx, step.MandateID)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeMandateGate,
			"step %q references mandate %s which could not be loaded", step.ID, step.MandateID).
			WithStep(step.ID).WithCause(err)
	}
	if !e.mandates.CanExecute(m) {
		return schema.NewErrorf(schema.ErrCodeMandateGate,
			"mandate %s does not authorize execution", m.MandateID).
			WithStep(step.ID).
			WithDetails(map[string]any{
				"mandate_id": m.MandateID,
				"status":     string(m.Status),
			})
	}
	return nil
}

// consumeMandate marks the gated step's mandate as executed after the tool
// succeeded. A consumption failure does not fail the step; the work is done.
func (e *Engine) consumeMandate(ctx context.Context, step *schema.WorkflowStep, ectx *schema.ExecutionContext, logger *slog.Logger) {
	m, err := e.mandates.Execute(ctx, step.MandateID, ectx.InitiatorID,
		fmt.Sprintf("step %q completed", step.ID))
	if err != nil {
		logger.Warn("mandate consumption failed",
			"step_id", step.ID, "mandate_id", step.MandateID, "error", err)
		return
	}
	e.publish(ctx, ectx, step.ID, schema.TopicMandateExecuted, map[string]any{
		"mandate_id": m.MandateID,
	})
}
