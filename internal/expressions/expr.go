package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// ExprEngine evaluates Expr programs against the execution variable
// scope. It backs the default branch-condition dialect: comparisons,
// boolean logic, membership (in, contains), nil coalescing (??) and
// optional chaining (?.) over step outputs.
//
// Programs are compiled once per distinct source against an untyped
// scope, so a cached program is valid for any variable map and can be
// shared across concurrent runs.
type ExprEngine struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: make(map[string]*vm.Program)}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate runs an expression with the variable scope as its
// environment. Every key of vars is addressable as a top-level
// identifier; unknown identifiers resolve to nil.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	if vars == nil {
		vars = map[string]any{}
	}

	out, err := vm.Run(prg, vars)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expression %q failed: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

// EvaluateBool runs a branch condition and requires a boolean result.
func (e *ExprEngine) EvaluateBool(ctx context.Context, expression string, vars map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, vars)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExecution,
			"condition %q produced %s, want boolean", expression, typeName(out)).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}

func (e *ExprEngine) program(expression string) (*vm.Program, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expression")
	}

	e.mu.RLock()
	prg, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"cannot compile %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.mu.Lock()
	e.programs[expression] = prg
	e.mu.Unlock()
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
