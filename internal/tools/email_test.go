package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanMailer captures sent messages for assertions.
type chanMailer struct {
	sent chan Message
}

func (m *chanMailer) Send(_ context.Context, msg Message) error {
	m.sent <- msg
	return nil
}

func TestEmail_DispatchesAsynchronously(t *testing.T) {
	mailer := &chanMailer{sent: make(chan Message, 1)}
	tool := NewEmailTool(mailer, nil)

	out, err := tool.Execute(context.Background(), map[string]any{
		"to":      "ops@example.com",
		"subject": "payment captured",
		"body":    "charge ch_123 settled",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["dispatched"])

	select {
	case msg := <-mailer.sent:
		assert.Equal(t, []string{"ops@example.com"}, msg.To)
		assert.Equal(t, "payment captured", msg.Subject)
	case <-time.After(2 * time.Second):
		t.Fatal("message was never handed to the mailer")
	}
}

func TestEmail_MultipleRecipients(t *testing.T) {
	mailer := &chanMailer{sent: make(chan Message, 1)}
	tool := NewEmailTool(mailer, nil)

	out, err := tool.Execute(context.Background(), map[string]any{
		"to":      []any{"a@example.com", "b@example.com"},
		"subject": "weekly report",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, out["to"])
}

func TestEmail_Validate_RejectsBadRecipients(t *testing.T) {
	tool := NewEmailTool(&chanMailer{sent: make(chan Message, 1)}, nil)

	assert.Error(t, tool.Validate(map[string]any{"to": ""}))
	assert.Error(t, tool.Validate(map[string]any{"to": []any{}}))
	assert.Error(t, tool.Validate(map[string]any{"to": 42}))
	assert.Error(t, tool.Validate(map[string]any{"to": "not-an-address"}))
	assert.NoError(t, tool.Validate(map[string]any{"to": "ops@example.com"}))
}

func TestEmail_DeliveryFailureDoesNotFailStep(t *testing.T) {
	tool := NewEmailTool(failingMailer{}, nil)

	out, err := tool.Execute(context.Background(), map[string]any{
		"to":      "ops@example.com",
		"subject": "x",
	}, nil)
	require.NoError(t, err, "delivery errors are logged, not surfaced")
	assert.Equal(t, true, out["dispatched"])
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, Message) error {
	return assert.AnError
}
