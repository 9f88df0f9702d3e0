package streaming

import (
	"context"
	"log/slog"

	"github.com/IOUser755/AP2-01-sub000/internal/store"
)

// PersistentSink records events in the store's execution event log before
// forwarding them to an inner sink. Persistence failures are logged, never
// surfaced: the audit trail is best-effort and must not stall a run.
type PersistentSink struct {
	log    *store.EventLog
	next   EventSink
	logger *slog.Logger
}

// NewPersistentSink wraps an event log and an optional downstream sink.
func NewPersistentSink(log *store.EventLog, next EventSink, logger *slog.Logger) *PersistentSink {
	if next == nil {
		next = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistentSink{log: log, next: next, logger: logger}
}

func (s *PersistentSink) Publish(ctx context.Context, event Event) error {
	if err := s.log.Record(ctx, event.ExecutionID, event.StepID, event.Topic, event.Payload); err != nil {
		s.logger.Warn("event log write failed",
			"execution_id", event.ExecutionID,
			"topic", event.Topic,
			"error", err)
	}
	return s.next.Publish(ctx, event)
}
