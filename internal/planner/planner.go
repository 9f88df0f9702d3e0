package planner

import "github.com/IOUser755/AP2-01-sub000/pkg/schema"

// Validator orchestrates the three-stage graph validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (trigger count, tool refs, connection targets)
// 3. Graph (cycles, reachability)
//
// Validate is a pure function of the graph: the same input always
// produces the same result.
type Validator struct {
	jsonSchema *GraphSchemaValidator
	tools      ToolLookup
}

// NewValidator creates a Validator. lookup may be nil to skip tool
// existence checks.
func NewValidator(lookup ToolLookup) (*Validator, error) {
	jsv, err := NewGraphSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Validator{jsonSchema: jsv, tools: lookup}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and graph stages are skipped.
func (v *Validator) Validate(g *schema.WorkflowGraph) *schema.ValidationResult {
	if g == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow graph is nil")
		return r
	}

	result := validateStructural(v.jsonSchema, g)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(g, v.tools))

	// Graph analysis is skipped if semantic errors exist; the edge set
	// may be nonsense.
	if result.Valid() {
		result.Merge(validateGraph(g))
	}

	return result
}

// validateStructural wraps GraphSchemaValidator.ValidateGraph, converting
// its error output into ValidationResult.
func validateStructural(v *GraphSchemaValidator, g *schema.WorkflowGraph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateGraph(g)
	if err == nil {
		return result
	}

	agErr, ok := err.(*schema.AgentError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if agErr.Details != nil {
		if violations, ok := agErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, agErr.Message)
	return result
}
