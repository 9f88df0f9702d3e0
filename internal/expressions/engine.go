package expressions

import "context"

// Engine evaluates expressions against the execution variable scope.
// Three implementations: Expr (conditions and logic), CEL (guard
// expressions), GoJQ (data transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
