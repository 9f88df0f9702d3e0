package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// Registry is the thread-safe catalog of executable tools. All step
// execution funnels through Execute, which guarantees parameters are
// validated before the tool runs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Returns error on duplicate name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return schema.NewError(schema.ErrCodeValidation, "tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "tool %q already registered", name)
	}

	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeToolUnavailable, "tool %q not registered", name)
	}
	return tool, nil
}

// Has checks if a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// List returns info for all registered tools, sorted by name.
func (r *Registry) List() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, ToolInfo{
			Name:        t.Name(),
			Category:    t.Category(),
			Permissions: t.Permissions(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// ValidateParameters checks params against the tool's declared specs and
// then the tool's own Validate hook. Defaults are applied before checks.
func (r *Registry) ValidateParameters(name string, params map[string]any) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	tool, err := r.Get(name)
	if err != nil {
		result.AddError(name, schema.ErrCodeToolUnavailable, err.Error())
		return result
	}

	merged := applyDefaults(tool.Params(), params)
	result.Merge(checkSpecs(name, tool.Params(), merged))
	if !result.Valid() {
		return result
	}

	if err := tool.Validate(merged); err != nil {
		result.AddError(name, schema.ErrCodeValidation, err.Error())
	}
	return result
}

// Execute validates and runs a tool. Invalid parameters never reach the
// tool: validation failures return before any side effect.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, ectx *schema.ExecutionContext) (map[string]any, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	merged := applyDefaults(tool.Params(), params)

	result := checkSpecs(name, tool.Params(), merged)
	if result.Valid() {
		if verr := tool.Validate(merged); verr != nil {
			result.AddError(name, schema.ErrCodeValidation, verr.Error())
		}
	}
	if !result.Valid() {
		return nil, result.ToError()
	}

	return tool.Execute(ctx, merged, ectx)
}
