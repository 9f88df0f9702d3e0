package store

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

func TestEventLog_SequencePerExecution(t *testing.T) {
	s := newTestStore(t)
	log := NewEventLog(s)
	ctx := context.Background()

	execA := uuid.NewString()
	execB := uuid.NewString()

	require.NoError(t, log.Record(ctx, execA, "", schema.TopicExecutionStarted, nil))
	require.NoError(t, log.Record(ctx, execA, "charge", schema.TopicStepStarted, nil))
	require.NoError(t, log.Record(ctx, execB, "", schema.TopicExecutionStarted, nil))

	eventsA, err := log.Events(ctx, execA, 0)
	require.NoError(t, err)
	require.Len(t, eventsA, 2)
	assert.Equal(t, int64(1), eventsA[0].Sequence)
	assert.Equal(t, int64(2), eventsA[1].Sequence)

	// Sequences are scoped per execution, not global.
	eventsB, err := log.Events(ctx, execB, 0)
	require.NoError(t, err)
	require.Len(t, eventsB, 1)
	assert.Equal(t, int64(1), eventsB[0].Sequence)
}

func TestEventLog_EventsSince(t *testing.T) {
	s := newTestStore(t)
	log := NewEventLog(s)
	ctx := context.Background()
	execID := uuid.NewString()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Record(ctx, execID, "", schema.TopicStepStarted, nil))
	}

	events, err := log.Events(ctx, execID, 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Sequence)
}

func TestEventLog_ReplayTrace(t *testing.T) {
	s := newTestStore(t)
	log := NewEventLog(s)
	ctx := context.Background()
	execID := uuid.NewString()

	require.NoError(t, log.Record(ctx, execID, "", schema.TopicExecutionStarted, nil))
	require.NoError(t, log.Record(ctx, execID, "charge", schema.TopicStepStarted, nil))
	require.NoError(t, log.Record(ctx, execID, "charge", schema.TopicStepCompleted, schema.StepResult{
		StepID: "charge", Status: schema.StepSuccess, Output: map[string]any{"status_code": float64(200)},
	}))
	require.NoError(t, log.Record(ctx, execID, "notify", schema.TopicStepFailed, schema.StepResult{
		StepID: "notify", Status: schema.StepFailure, Error: "smtp unreachable",
	}))

	trace, err := log.ReplayTrace(ctx, execID)
	require.NoError(t, err)
	require.Len(t, trace, 2)
	assert.Equal(t, "charge", trace[0].StepID)
	assert.Equal(t, schema.StepSuccess, trace[0].Status)
	assert.Equal(t, float64(200), trace[0].Output["status_code"])
	assert.Equal(t, "notify", trace[1].StepID)
	assert.Equal(t, "smtp unreachable", trace[1].Error)
}

func TestEventLog_ReplayDetectsGap(t *testing.T) {
	s := newTestStore(t)
	log := NewEventLog(s)
	ctx := context.Background()
	execID := uuid.NewString()

	for i := 0; i < 3; i++ {
		require.NoError(t, log.Record(ctx, execID, "", schema.TopicStepStarted, nil))
	}
	// Punch a hole in the sequence directly.
	_, err := s.DB().ExecContext(ctx,
		`DELETE FROM execution_events WHERE execution_id = ? AND sequence = 2`, execID)
	require.NoError(t, err)

	_, err = log.ReplayTrace(ctx, execID)
	require.Error(t, err)
	var agErr *schema.AgentError
	require.ErrorAs(t, err, &agErr)
	assert.Equal(t, schema.ErrCodeStore, agErr.Code)
}

func TestEventLog_ConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	log := NewEventLog(s)
	ctx := context.Background()
	execID := uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Record(ctx, execID, "", schema.TopicStepStarted, nil)
		}()
	}
	wg.Wait()

	events, err := log.Events(ctx, execID, 0)
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence, "sequences must be contiguous under concurrency")
	}
}
