package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeTimeout           = "TIMEOUT_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeStepFailed        = "STEP_FAILED"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeToolUnavailable   = "TOOL_UNAVAILABLE"
	ErrCodeMandateGate       = "MANDATE_NOT_APPROVED"
	ErrCodeAgentNotActive    = "AGENT_NOT_EXECUTABLE"
	ErrCodeRetryExhausted    = "RETRY_EXHAUSTED"
	ErrCodeRollbackPartial   = "ROLLBACK_PARTIAL_FAILURE"
	ErrCodeStore             = "STORE_ERROR"
)

// AgentError is the structured error type for all engine operations.
type AgentError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AgentError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AgentError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AgentError.
func NewError(code, message string) *AgentError {
	return &AgentError{Code: code, Message: message}
}

// NewErrorf creates a new AgentError with a formatted message.
func NewErrorf(code, format string, args ...any) *AgentError {
	return &AgentError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *AgentError) WithStep(stepID string) *AgentError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *AgentError) WithCause(err error) *AgentError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AgentError) WithDetails(details map[string]any) *AgentError {
	e.Details = details
	return e
}
