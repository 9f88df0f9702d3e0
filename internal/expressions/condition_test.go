package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(nil)
	require.NoError(t, err)
	return ev
}

func TestEvaluator_Comparison(t *testing.T) {
	ev := newTestEvaluator(t)
	vars := map[string]any{"amount": 150.0}

	assert.True(t, ev.Evaluate(context.Background(), "amount > 100", vars))
	assert.False(t, ev.Evaluate(context.Background(), "amount > 200", vars))
}

func TestEvaluator_EqualityAndLogical(t *testing.T) {
	ev := newTestEvaluator(t)
	vars := map[string]any{
		"currency": "USD",
		"verified": true,
	}

	assert.True(t, ev.Evaluate(context.Background(), `currency == "USD" && verified`, vars))
	assert.False(t, ev.Evaluate(context.Background(), `currency != "USD" || !verified`, vars))
}

func TestEvaluator_Membership(t *testing.T) {
	ev := newTestEvaluator(t)
	vars := map[string]any{
		"region":  "eu",
		"regions": []any{"us", "eu"},
		"memo":    "payment for order 42",
	}

	assert.True(t, ev.Evaluate(context.Background(), `region in regions`, vars))
	assert.True(t, ev.Evaluate(context.Background(), `memo contains "order"`, vars))
	assert.False(t, ev.Evaluate(context.Background(), `"apac" in regions`, vars))
}

func TestEvaluator_EmptyExpressionIsTrue(t *testing.T) {
	ev := newTestEvaluator(t)

	assert.True(t, ev.Evaluate(context.Background(), "", nil))
	assert.True(t, ev.Evaluate(context.Background(), "   ", nil))
}

func TestEvaluator_MalformedExpressionIsFalse(t *testing.T) {
	ev := newTestEvaluator(t)

	assert.False(t, ev.Evaluate(context.Background(), `][ garbage >>`, map[string]any{}))
}

func TestEvaluator_NonBooleanResultIsFalse(t *testing.T) {
	ev := newTestEvaluator(t)
	vars := map[string]any{"amount": 150.0}

	assert.False(t, ev.Evaluate(context.Background(), "amount + 1", vars))
	assert.False(t, ev.Evaluate(context.Background(), `"a string"`, vars))
}

func TestEvaluator_MissingVariableIsFalse(t *testing.T) {
	ev := newTestEvaluator(t)

	// Undefined vars resolve to nil; nil > 100 is a runtime error, not a panic.
	assert.False(t, ev.Evaluate(context.Background(), "missing > 100", map[string]any{}))
}

func TestEvaluator_CELPrefix(t *testing.T) {
	ev := newTestEvaluator(t)
	vars := map[string]any{"amount": 150.0, "region": "eu"}

	assert.True(t, ev.Evaluate(context.Background(), `cel:vars.amount > 100.0`, vars))
	assert.False(t, ev.Evaluate(context.Background(), `cel:vars.region == "us"`, vars))
}

func TestEvaluator_CELPrefixMalformedIsFalse(t *testing.T) {
	ev := newTestEvaluator(t)

	assert.False(t, ev.Evaluate(context.Background(), `cel:>>>`, map[string]any{}))
}
