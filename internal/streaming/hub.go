package streaming

import (
	"context"
	"time"
)

// Event is a real-time notification emitted during an execution: run
// lifecycle, step progress, and mandate transitions.
type Event struct {
	ExecutionID string    `json:"execution_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	StepID      string    `json:"step_id,omitempty"`
	Topic       string    `json:"topic"`
	Payload     any       `json:"payload,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Filter specifies which events a subscriber wants to receive.
type Filter struct {
	ExecutionID string   `json:"execution_id,omitempty"`
	AgentID     string   `json:"agent_id,omitempty"`
	Topics      []string `json:"topics,omitempty"`
}

// EventSink receives execution events. Delivery is fire-and-forget:
// implementations must never block the publisher.
type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

// EventHub is an EventSink that also supports filtered subscriptions.
type EventHub interface {
	EventSink
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }
