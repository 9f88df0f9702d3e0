package planner

import (
	"fmt"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// validateGraph performs graph analysis: cycle detection over all edge
// kinds (success, failure, condition, fallback) and reachability from
// the trigger.
// Cycles are errors; unreachable steps are warnings.
func validateGraph(g *schema.WorkflowGraph) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	stepIDs := make(map[string]bool, len(g.Steps))
	for i := range g.Steps {
		stepIDs[g.Steps[i].ID] = true
	}

	// successors[id] filtered to edges that resolve; invalid refs are
	// already caught by the semantic stage.
	successors := make(map[string][]string, len(g.Steps))
	for i := range g.Steps {
		s := &g.Steps[i]
		for _, next := range s.Successors() {
			if stepIDs[next] {
				successors[s.ID] = append(successors[s.ID], next)
			}
		}
	}

	// DFS three-color cycle detection.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.Steps))

	var visit func(id string) *schema.ValidationIssue
	visit = func(id string) *schema.ValidationIssue {
		color[id] = gray
		for _, next := range successors[id] {
			switch color[next] {
			case gray:
				return &schema.ValidationIssue{
					Path:     "steps",
					Code:     schema.ErrCodeCycleDetected,
					Message:  fmt.Sprintf("workflow contains a cycle: %s -> %s", id, next),
					Severity: schema.SeverityError,
				}
			case white:
				if issue := visit(next); issue != nil {
					return issue
				}
			}
		}
		color[id] = black
		return nil
	}

	for i := range g.Steps {
		id := g.Steps[i].ID
		if color[id] == white {
			if issue := visit(id); issue != nil {
				result.Errors = append(result.Errors, *issue)
				return result // cycle makes reachability analysis meaningless
			}
		}
	}

	// Reachability: BFS from the trigger through all edges.
	trigger := g.Trigger()
	if trigger == nil {
		return result // already an error in the semantic stage
	}

	reachable := map[string]bool{trigger.ID: true}
	queue := []string{trigger.ID}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range successors[node] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for i := range g.Steps {
		s := &g.Steps[i]
		if !reachable[s.ID] {
			result.AddWarning(fmt.Sprintf("steps[%s]", s.ID), schema.ErrCodeValidation,
				fmt.Sprintf("step %q is unreachable from the trigger", s.ID))
		}
	}

	return result
}
