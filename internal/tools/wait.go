package tools

import (
	"context"
	"time"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

const (
	minWaitMs = 100
	maxWaitMs = 300_000 // 5 minutes
)

// DelayTool implements the "delay" tool: it sleeps for duration_ms,
// honoring the step deadline. Durations are clamped to a sane window so
// a bad graph cannot park a worker for hours.
type DelayTool struct{}

// NewDelayTool creates a new delay tool.
func NewDelayTool() *DelayTool {
	return &DelayTool{}
}

func (t *DelayTool) Name() string          { return "delay" }
func (t *DelayTool) Category() string      { return "timing" }
func (t *DelayTool) Permissions() []string { return nil }

func (t *DelayTool) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "duration_ms", Type: ParamNumber, Required: true,
			Min: fptr(minWaitMs), Max: fptr(maxWaitMs)},
	}
}

func (t *DelayTool) Validate(map[string]any) error { return nil }

func (t *DelayTool) Execute(ctx context.Context, params map[string]any, _ *schema.ExecutionContext) (map[string]any, error) {
	durationMs := intParam(params, "duration_ms", 0)
	duration := time.Duration(durationMs) * time.Millisecond

	timer := time.NewTimer(duration)
	defer timer.Stop()

	start := time.Now()
	select {
	case <-timer.C:
		return map[string]any{"waited_ms": time.Since(start).Milliseconds()}, nil
	case <-ctx.Done():
		return nil, schema.NewErrorf(schema.ErrCodeTimeout,
			"delay interrupted after %dms", time.Since(start).Milliseconds()).
			WithCause(ctx.Err())
	}
}

var _ Tool = (*DelayTool)(nil)
