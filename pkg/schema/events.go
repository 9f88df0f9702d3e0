package schema

// Event topics published on the execution stream.
const (
	TopicExecutionStarted    = "execution:started"
	TopicExecutionCompleted  = "execution:completed"
	TopicExecutionFailed     = "execution:failed"
	TopicExecutionCancelled  = "execution:cancelled"
	TopicExecutionRolledBack = "execution:rolledback"

	TopicStepStarted   = "step:started"
	TopicStepCompleted = "step:completed"
	TopicStepFailed    = "step:failed"

	TopicMandateCreated  = "mandate:created"
	TopicMandateApproved = "mandate:approved"
	TopicMandateExecuted = "mandate:executed"
)
