package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// Param helpers used by all tool files.

func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

func boolParam(m map[string]any, key string, defaultVal bool) bool {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

func intParam(m map[string]any, key string, defaultVal int) int {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return defaultVal
		}
		return int(i)
	default:
		return defaultVal
	}
}

func floatParam(m map[string]any, key string, defaultVal float64) float64 {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return defaultVal
		}
		return f
	default:
		return defaultVal
	}
}

// applyDefaults returns a copy of params with spec defaults filled in for
// absent keys. The input map is never mutated.
func applyDefaults(specs []ParamSpec, params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+2)
	for k, v := range params {
		out[k] = v
	}
	for _, spec := range specs {
		if _, ok := out[spec.Name]; !ok && spec.Default != nil {
			out[spec.Name] = spec.Default
		}
	}
	return out
}

// checkSpecs validates params against the declared specs: required
// presence, type conformance, numeric bounds, pattern, and enum
// membership. Unknown keys are allowed; tools own their own semantics.
func checkSpecs(toolName string, specs []ParamSpec, params map[string]any) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for _, spec := range specs {
		path := fmt.Sprintf("%s.%s", toolName, spec.Name)

		v, present := params[spec.Name]
		if !present || v == nil {
			if spec.Required {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("missing required parameter %q", spec.Name))
			}
			continue
		}

		switch spec.Type {
		case ParamString:
			s, ok := v.(string)
			if !ok {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("parameter %q must be a string (got %T)", spec.Name, v))
				continue
			}
			if spec.Pattern != "" {
				re, err := compiledPattern(spec.Pattern)
				if err != nil {
					result.AddError(path, schema.ErrCodeValidation,
						fmt.Sprintf("invalid pattern for %q: %s", spec.Name, err))
				} else if !re.MatchString(s) {
					result.AddError(path, schema.ErrCodeValidation,
						fmt.Sprintf("parameter %q does not match pattern %s", spec.Name, spec.Pattern))
				}
			}
			if len(spec.Enum) > 0 && !slices.Contains(spec.Enum, s) {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("parameter %q must be one of %v (got %q)", spec.Name, spec.Enum, s))
			}
		case ParamNumber:
			n, ok := asNumber(v)
			if !ok {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("parameter %q must be a number (got %T)", spec.Name, v))
				continue
			}
			if spec.Min != nil && n < *spec.Min {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("parameter %q below minimum %v", spec.Name, *spec.Min))
			}
			if spec.Max != nil && n > *spec.Max {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("parameter %q above maximum %v", spec.Name, *spec.Max))
			}
		case ParamBoolean:
			if _, ok := v.(bool); !ok {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("parameter %q must be a boolean (got %T)", spec.Name, v))
			}
		case ParamObject:
			if _, ok := v.(map[string]any); !ok {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("parameter %q must be an object (got %T)", spec.Name, v))
			}
		case ParamArray:
			if _, ok := v.([]any); !ok {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("parameter %q must be an array (got %T)", spec.Name, v))
			}
		}
	}

	return result
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

var (
	patternMu    sync.RWMutex
	patternCache = map[string]*regexp.Regexp{}
)

// compiledPattern caches compiled validation regexes; specs are static
// per tool so the cache stays small.
func compiledPattern(pattern string) (*regexp.Regexp, error) {
	patternMu.RLock()
	re, ok := patternCache[pattern]
	patternMu.RUnlock()
	if ok {
		return re, nil
	}

	patternMu.Lock()
	defer patternMu.Unlock()

	if re, ok := patternCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patternCache[pattern] = re
	return re, nil
}

// fptr is a shorthand for bound literals in ParamSpec declarations.
func fptr(f float64) *float64 { return &f }
