package engine

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/IOUser755/AP2-01-sub000/internal/tools"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// nonRetryableCodes are step failures that repeating cannot fix.
var nonRetryableCodes = map[string]struct{}{
	schema.ErrCodeValidation:      {},
	schema.ErrCodeMandateGate:     {},
	schema.ErrCodeCancelled:       {},
	schema.ErrCodeToolUnavailable: {},
	schema.ErrCodeAgentNotActive:  {},
}

// retryable decides whether a failed attempt may be repeated. The tool's
// advisory is consulted first: a tool that declares itself non-retryable
// is never retried regardless of the error.
func (e *Engine) retryable(step *schema.WorkflowStep, stepErr *schema.AgentError) bool {
	if tool, err := e.tools.Get(step.ToolType); err == nil {
		if adv, ok := tool.(tools.Advisory); ok && !adv.Retryable() {
			return false
		}
	}
	return isRetryableError(stepErr)
}

// isRetryableError classifies an error for retry. Timeouts and network
// failures are retryable; validation, cancellation, and gate failures are
// not. Unclassified execution errors default to retryable.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var agErr *schema.AgentError
	if errors.As(err, &agErr) {
		if _, blocked := nonRetryableCodes[agErr.Code]; blocked {
			return false
		}
		if agErr.Code == schema.ErrCodeTimeout {
			return true
		}
		if agErr.Cause != nil {
			return isRetryableError(agErr.Cause)
		}
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"too many requests",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return true
}
