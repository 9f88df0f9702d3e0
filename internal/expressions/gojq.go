package expressions

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// GoJQEngine runs jq programs for the data_transform tool: extracting,
// reshaping and aggregating step outputs before they re-enter the
// variable scope. The environment loader is disabled so a program
// cannot read process state through env or $ENV.
type GoJQEngine struct {
	mu    sync.RWMutex
	codes map[string]*gojq.Code
}

// NewGoJQEngine creates a new GoJQ expression engine.
func NewGoJQEngine() *GoJQEngine {
	return &GoJQEngine{codes: make(map[string]*gojq.Code)}
}

// Name returns the engine identifier.
func (e *GoJQEngine) Name() string {
	return "jq"
}

// Evaluate runs a jq program with data as the input document. A program
// emitting a single value returns that value directly; multiple values
// are collected into a []any, and an empty stream returns nil.
func (e *GoJQEngine) Evaluate(ctx context.Context, program string, data map[string]any) (any, error) {
	code, err := e.code(program)
	if err != nil {
		return nil, err
	}

	results, err := drain(code.RunWithContext(ctx, data), program)
	if err != nil {
		return nil, err
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// EvaluateNormalized converts integer values in data to float64 before
// running the program. jq has a single number type; tool outputs built
// from Go ints would otherwise slip past type-sensitive filters.
func (e *GoJQEngine) EvaluateNormalized(ctx context.Context, program string, data map[string]any) (any, error) {
	doc, ok := jsonNumbers(data).(map[string]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "input must be a JSON object")
	}
	return e.Evaluate(ctx, program, doc)
}

func (e *GoJQEngine) code(program string) (*gojq.Code, error) {
	if program == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq program")
	}

	e.mu.RLock()
	code, ok := e.codes[program]
	e.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(program)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"cannot parse jq program %q: %s", program, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"program": program})
	}

	code, err = gojq.Compile(query,
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"cannot compile jq program %q: %s", program, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"program": program})
	}

	e.mu.Lock()
	e.codes[program] = code
	e.mu.Unlock()
	return code, nil
}

// drain collects every value a program emits, stopping at the first
// evaluation error.
func drain(iter gojq.Iter, program string) ([]any, error) {
	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			return results, nil
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"jq program %q failed: %s", program, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"program": program})
		}
		results = append(results, val)
	}
}

func jsonNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonNumbers(item)
		}
		return out
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}

var _ Engine = (*GoJQEngine)(nil)
