package store

import (
	"context"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// AgentRepository is the engine-facing view of persisted agents: it loads
// executable graphs and folds run outcomes back into agent metrics.
type AgentRepository struct {
	store Store
}

// NewAgentRepository wraps a Store.
func NewAgentRepository(s Store) *AgentRepository {
	return &AgentRepository{store: s}
}

// LoadGraph returns the agent's workflow graph, rejecting agents whose
// lifecycle status forbids execution.
func (r *AgentRepository) LoadGraph(ctx context.Context, agentID string) (*schema.WorkflowGraph, error) {
	agent, err := r.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.Executable() {
		return nil, schema.NewErrorf(schema.ErrCodeAgentNotActive,
			"agent %q is %s and cannot be executed", agentID, agent.Status)
	}
	graph := agent.Graph
	return &graph, nil
}

// RecordMetrics folds one execution outcome into the agent's metrics.
func (r *AgentRepository) RecordMetrics(ctx context.Context, agentID string, success bool, durationMs int64, cost float64) error {
	return r.store.UpdateAgentMetrics(ctx, agentID, success, durationMs, cost)
}
