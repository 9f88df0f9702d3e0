package expressions

import (
	"context"
	"log/slog"
	"strings"
)

// celPrefix routes an expression to the CEL engine instead of Expr.
const celPrefix = "cel:"

// Evaluator decides branch conditions for condition steps and guarded
// edges. It never returns an error: empty expressions are true, and
// malformed or non-boolean expressions evaluate to false and are logged.
//
// Expressions are Expr by default ("amount > 100 && region in regions").
// A "cel:" prefix switches to CEL, where the scope is exposed as the
// `vars` map ("cel:vars.amount > 100.0").
type Evaluator struct {
	expr   *ExprEngine
	cel    *CELEngine
	logger *slog.Logger
}

// NewEvaluator creates a condition evaluator backed by both engines.
func NewEvaluator(logger *slog.Logger) (*Evaluator, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		expr:   NewExprEngine(),
		cel:    celEngine,
		logger: logger,
	}, nil
}

// Evaluate resolves a boolean condition against the variable scope.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, vars map[string]any) bool {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true
	}

	if rest, ok := strings.CutPrefix(expression, celPrefix); ok {
		out, err := e.cel.Evaluate(ctx, rest, map[string]any{"vars": vars})
		if err != nil {
			e.logger.WarnContext(ctx, "condition evaluation failed, treating as false",
				"expression", expression, "error", err)
			return false
		}
		b, ok := out.(bool)
		if !ok {
			e.logger.WarnContext(ctx, "condition did not produce a boolean, treating as false",
				"expression", expression, "result_type", typeName(out))
			return false
		}
		return b
	}

	b, err := e.expr.EvaluateBool(ctx, expression, vars)
	if err != nil {
		e.logger.WarnContext(ctx, "condition evaluation failed, treating as false",
			"expression", expression, "error", err)
		return false
	}
	return b
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	switch v.(type) {
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return "unknown"
	}
}
