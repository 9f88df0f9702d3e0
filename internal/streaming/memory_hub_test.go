package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IOUser755/AP2-01-sub000/internal/store"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

func TestMemoryHub_PublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	event := Event{
		ExecutionID: "exec-1",
		StepID:      "charge",
		Topic:       schema.TopicStepCompleted,
		Payload:     map[string]any{"status_code": 200},
	}
	require.NoError(t, hub.Publish(ctx, event))

	select {
	case got := <-ch:
		assert.Equal(t, "exec-1", got.ExecutionID)
		assert.Equal(t, "charge", got.StepID)
		assert.Equal(t, schema.TopicStepCompleted, got.Topic)
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryHub_FilterByExecutionID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{ExecutionID: "exec-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, Event{ExecutionID: "exec-1", Topic: schema.TopicStepStarted}))
	require.NoError(t, hub.Publish(ctx, Event{ExecutionID: "exec-2", Topic: schema.TopicStepStarted}))

	select {
	case got := <-ch:
		assert.Equal(t, "exec-1", got.ExecutionID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// the exec-2 event was filtered out
	}
}

func TestMemoryHub_FilterByTopic(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{
		Topics: []string{schema.TopicExecutionCompleted, schema.TopicExecutionFailed},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, Event{ExecutionID: "exec-1", Topic: schema.TopicStepStarted}))
	require.NoError(t, hub.Publish(ctx, Event{ExecutionID: "exec-1", Topic: schema.TopicExecutionCompleted}))

	select {
	case got := <-ch:
		assert.Equal(t, schema.TopicExecutionCompleted, got.Topic)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	// Fill the buffer and then some; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultChannelBuffer*2; i++ {
			_ = hub.Publish(ctx, Event{ExecutionID: "exec-1", Topic: schema.TopicStepStarted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			assert.Equal(t, defaultChannelBuffer, received, "overflow events are dropped, not queued")
			return
		}
	}
}

func TestMemoryHub_CancelRemovesSubscriber(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	cancel()

	require.NoError(t, hub.Publish(ctx, Event{ExecutionID: "exec-1", Topic: schema.TopicStepStarted}))

	select {
	case evt, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event after cancel: %+v", evt)
		}
	case <-time.After(50 * time.Millisecond):
		// nothing delivered
	}
}

func TestMemoryHub_ConcurrentPublishers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hub.Publish(ctx, Event{ExecutionID: "exec-1", Topic: schema.TopicStepStarted})
		}()
	}
	wg.Wait()

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			assert.Equal(t, 10, received)
			return
		}
	}
}

func TestPersistentSink_RecordsAndForwards(t *testing.T) {
	mem := store.NewMemoryStore()
	hub := NewMemoryHub()
	sink := NewPersistentSink(store.NewEventLog(mem), hub, nil)
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, sink.Publish(ctx, Event{
		ExecutionID: "exec-1",
		StepID:      "charge",
		Topic:       schema.TopicStepCompleted,
		Payload:     schema.StepResult{StepID: "charge", Status: schema.StepSuccess},
	}))

	select {
	case got := <-ch:
		assert.Equal(t, schema.TopicStepCompleted, got.Topic)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded event")
	}

	events, err := mem.GetEvents(ctx, "exec-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, schema.TopicStepCompleted, events[0].Topic)
	assert.Equal(t, int64(1), events[0].Sequence)
}
