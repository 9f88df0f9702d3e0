package expressions

import "strings"

// Substitute resolves ${name} and ${a.b.c} references in step parameters
// against the execution variable scope. Only string values consisting of
// exactly one reference token are replaced, and the resolved value keeps
// its native type. Objects and arrays are resolved recursively; every
// other value passes through unchanged. References that do not resolve
// are left as written so the failure surfaces at the tool, not here.
func Substitute(params map[string]any, vars map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = substituteValue(v, vars)
	}
	return out
}

func substituteValue(v any, vars map[string]any) any {
	switch val := v.(type) {
	case string:
		path, ok := referencePath(val)
		if !ok {
			return val
		}
		resolved, found := LookupPath(vars, path)
		if !found {
			return val
		}
		return resolved
	case map[string]any:
		return Substitute(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, vars)
		}
		return out
	default:
		return v
	}
}

// referencePath extracts the dotted path from a whole-token ${...} string.
// Embedded references ("id-${x}") and nested tokens are not substituted.
func referencePath(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	path := strings.TrimSpace(s[2 : len(s)-1])
	if path == "" || strings.Contains(path, "${") {
		return "", false
	}
	return path, true
}

// LookupPath navigates the variable scope using a dot-delimited path.
// A direct key match wins over traversal, so keys containing dots stay
// addressable.
func LookupPath(vars map[string]any, path string) (any, bool) {
	if vars == nil {
		return nil, false
	}
	if v, ok := vars[path]; ok {
		return v, true
	}

	segments := strings.Split(path, ".")
	var current any = vars
	for _, seg := range segments {
		if seg == "" {
			return nil, false
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
