package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// EventLog provides audit-trail operations on top of a Store's append-only
// execution event log.
type EventLog struct {
	store Store
}

// NewEventLog wraps a Store to provide event log operations.
func NewEventLog(s Store) *EventLog {
	return &EventLog{store: s}
}

// Record appends a lifecycle event for an execution. The payload is
// marshalled as JSON; a nil payload produces an event with no body.
func (el *EventLog) Record(ctx context.Context, executionID, stepID, topic string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		raw = b
	}
	return el.store.AppendEvent(ctx, &ExecutionEvent{
		ExecutionID: executionID,
		StepID:      stepID,
		Topic:       topic,
		Payload:     raw,
	})
}

// Events returns an execution's events with sequence > since, in order.
func (el *EventLog) Events(ctx context.Context, executionID string, since int64) ([]*ExecutionEvent, error) {
	return el.store.GetEvents(ctx, executionID, since)
}

// ReplayTrace reconstructs the ordered step trace of an execution from its
// event log. Returns an error when sequence gaps are detected, since a gap
// means the audit trail is incomplete.
func (el *EventLog) ReplayTrace(ctx context.Context, executionID string) ([]schema.StepResult, error) {
	events, err := el.store.GetEvents(ctx, executionID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	// Validate sequence contiguity.
	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in execution %s: expected %d, got %d", executionID, expected, e.Sequence)
		}
	}

	var trace []schema.StepResult
	for _, e := range events {
		switch e.Topic {
		case schema.TopicStepCompleted, schema.TopicStepFailed:
			var result schema.StepResult
			if len(e.Payload) > 0 {
				if err := json.Unmarshal(e.Payload, &result); err != nil {
					return nil, fmt.Errorf("unmarshal step result at sequence %d: %w", e.Sequence, err)
				}
			}
			if result.StepID == "" {
				result.StepID = e.StepID
			}
			trace = append(trace, result)
		}
	}
	return trace, nil
}
