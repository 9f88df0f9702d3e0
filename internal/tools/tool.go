package tools

import (
	"context"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// ParamType is the declared type of a tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamObject  ParamType = "object"
	ParamArray   ParamType = "array"
)

// ParamSpec declares a single tool parameter and its constraints.
// Min and Max bound numbers; Pattern and Enum constrain strings.
type ParamSpec struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Tool is an executable unit of work referenced by a workflow step's
// tool type. Execute receives parameters already resolved against the
// variable scope; its output map is merged back into the scope.
type Tool interface {
	Name() string
	Category() string
	Params() []ParamSpec
	Permissions() []string
	Execute(ctx context.Context, params map[string]any, ectx *schema.ExecutionContext) (map[string]any, error)
	Validate(params map[string]any) error
}

// RollbackTool is implemented by tools that can compensate a completed
// execution. Rollback receives the original output of Execute.
type RollbackTool interface {
	Tool
	Rollback(ctx context.Context, output map[string]any, ectx *schema.ExecutionContext) error
}

// Advisory is implemented by tools that suggest execution hints to the
// engine. The step's own timeout always wins over the advisory value.
type Advisory interface {
	DefaultTimeoutMs() int64
	Retryable() bool
}

// ToolInfo is a summary of a registered tool for listing.
type ToolInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}
