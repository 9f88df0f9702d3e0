package tools

import (
	"context"
	"log/slog"
	"net/mail"
	"time"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// Message is an outbound email.
type Message struct {
	To      []string
	Subject string
	Body    string
	ReplyTo string
}

// Mailer delivers outbound email. Implementations must be safe for
// concurrent use; delivery happens off the engine's step loop.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer is a Mailer that only logs the message. It is the default
// when no real transport is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email dispatched",
		"to", msg.To, "subject", msg.Subject, "body_len", len(msg.Body))
	return nil
}

// sendTimeout bounds a detached delivery attempt.
const sendTimeout = 30 * time.Second

// EmailTool implements the "email" tool. Dispatch is asynchronous: the
// step completes as soon as the message is handed to the Mailer
// goroutine, and delivery failures are logged, not surfaced.
type EmailTool struct {
	mailer Mailer
	logger *slog.Logger
}

// NewEmailTool creates a new email tool. A nil mailer falls back to
// LogMailer.
func NewEmailTool(mailer Mailer, logger *slog.Logger) *EmailTool {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = &LogMailer{Logger: logger}
	}
	return &EmailTool{mailer: mailer, logger: logger}
}

func (t *EmailTool) Name() string          { return "email" }
func (t *EmailTool) Category() string      { return "messaging" }
func (t *EmailTool) Permissions() []string { return []string{"messaging:send"} }

func (t *EmailTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "to", Required: true, Description: "Recipient address or array of addresses."},
		{Name: "subject", Type: ParamString, Required: true},
		{Name: "body", Type: ParamString, Default: ""},
		{Name: "reply_to", Type: ParamString},
	}
}

func (t *EmailTool) Validate(params map[string]any) error {
	to, err := recipients(params["to"])
	if err != nil {
		return err
	}
	for _, addr := range to {
		if _, err := mail.ParseAddress(addr); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "email: invalid recipient %q", addr)
		}
	}
	return nil
}

func (t *EmailTool) Execute(ctx context.Context, params map[string]any, ectx *schema.ExecutionContext) (map[string]any, error) {
	to, err := recipients(params["to"])
	if err != nil {
		return nil, err
	}

	msg := Message{
		To:      to,
		Subject: stringParam(params, "subject", ""),
		Body:    stringParam(params, "body", ""),
		ReplyTo: stringParam(params, "reply_to", ""),
	}

	executionID := ""
	if ectx != nil {
		executionID = ectx.ExecutionID
	}

	// Detached context: delivery outlives the step and never blocks it.
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := t.mailer.Send(sendCtx, msg); err != nil {
			t.logger.Error("email delivery failed",
				"execution_id", executionID, "to", msg.To, "error", err)
		}
	}()

	return map[string]any{
		"dispatched": true,
		"to":         to,
		"subject":    msg.Subject,
	}, nil
}

func recipients(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "email: empty recipient")
		}
		return []string{val}, nil
	case []any:
		if len(val) == 0 {
			return nil, schema.NewError(schema.ErrCodeValidation, "email: empty recipient list")
		}
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, schema.NewError(schema.ErrCodeValidation, "email: recipients must be non-empty strings")
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		if len(val) == 0 {
			return nil, schema.NewError(schema.ErrCodeValidation, "email: empty recipient list")
		}
		return val, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "email: 'to' must be a string or array (got %T)", v)
	}
}

var _ Tool = (*EmailTool)(nil)
