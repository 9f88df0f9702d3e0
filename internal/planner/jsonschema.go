package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// graphSchemaJSON is the JSON Schema for WorkflowGraph validation.
// Embedded as a constant to avoid filesystem dependencies.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://agentd.dev/schemas/workflow-graph.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "agent_id": { "type": "string" },
    "version": { "type": "integer", "minimum": 0 },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "defaults": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["trigger", "action", "condition", "approval"]
        },
        "name": { "type": "string" },
        "tool_type": { "type": "string" },
        "parameters": { "type": "object" },
        "timeout_ms": { "type": "integer", "minimum": 1 },
        "error_handling": { "$ref": "#/$defs/error_handling" },
        "connections": { "$ref": "#/$defs/connections" },
        "mandate_id": { "type": "string" },
        "requires_authorization": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "error_handling": {
      "type": "object",
      "properties": {
        "strategy": {
          "type": "string",
          "enum": ["stop", "continue", "retry", "rollback"]
        },
        "max_retries": { "type": "integer", "minimum": 0 },
        "fallback_step_id": { "type": "string" }
      },
      "additionalProperties": false
    },
    "connections": {
      "type": "object",
      "properties": {
        "success_step_id": { "type": "string" },
        "failure_step_id": { "type": "string" },
        "conditions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["expression", "next_step_id"],
            "properties": {
              "expression": { "type": "string" },
              "next_step_id": { "type": "string", "minLength": 1 }
            },
            "additionalProperties": false
          }
        }
      },
      "additionalProperties": false
    }
  }
}`

// GraphSchemaValidator validates workflow graphs against the embedded
// JSON Schema (Draft 2020-12). It is safe for concurrent use.
type GraphSchemaValidator struct {
	graphSchema *jsonschema.Schema
}

// NewGraphSchemaValidator creates a validator with the graph schema
// pre-compiled.
func NewGraphSchemaValidator() (*GraphSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal graph schema: %w", err)
	}
	if err := c.AddResource("https://agentd.dev/schemas/workflow-graph.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add graph schema resource: %w", err)
	}

	compiled, err := c.Compile("https://agentd.dev/schemas/workflow-graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	return &GraphSchemaValidator{graphSchema: compiled}, nil
}

// ValidateGraph validates a WorkflowGraph against the JSON Schema.
func (v *GraphSchemaValidator) ValidateGraph(g *schema.WorkflowGraph) error {
	if g == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow graph is nil")
	}

	doc, err := toJSONValue(g)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow graph").WithCause(err)
	}

	if err := v.graphSchema.Validate(doc); err != nil {
		return toAgentError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toAgentError converts a jsonschema.ValidationError into an AgentError
// with clear, actionable messages.
func toAgentError(err error) *schema.AgentError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
