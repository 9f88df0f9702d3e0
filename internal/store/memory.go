package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs. Records
// are copied on the way in and out so callers never mutate stored state
// through returned pointers.
type MemoryStore struct {
	mu        sync.RWMutex
	agents    map[string]*Agent
	mandates  map[string]*schema.Mandate
	execs     map[string]*Execution
	events    map[string][]*ExecutionEvent
	jobs      map[string]*ScheduledJob
	eventNext map[string]int64
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:    make(map[string]*Agent),
		mandates:  make(map[string]*schema.Mandate),
		execs:     make(map[string]*Execution),
		events:    make(map[string][]*ExecutionEvent),
		jobs:      make(map[string]*ScheduledJob),
		eventNext: make(map[string]int64),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Vacuum(context.Context) error  { return nil }
func (s *MemoryStore) Close() error                  { return nil }

// --- Agents ---

func (s *MemoryStore) CreateAgent(_ context.Context, agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "agent %q already exists", agent.ID)
	}
	clone := *agent
	if clone.Status == "" {
		clone.Status = AgentDraft
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	clone.UpdatedAt = clone.CreatedAt
	s.agents[agent.ID] = &clone
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, storeNotFound("agent", id)
	}
	clone := *a
	return &clone, nil
}

func (s *MemoryStore) UpdateAgentStatus(_ context.Context, id string, status AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return storeNotFound("agent", id)
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateAgentMetrics(_ context.Context, id string, success bool, durationMs int64, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return storeNotFound("agent", id)
	}
	a.Metrics.Executions++
	if success {
		a.Metrics.Successes++
	} else {
		a.Metrics.Failures++
	}
	a.Metrics.TotalDurationMs += durationMs
	a.Metrics.TotalCost += cost
	now := time.Now().UTC()
	a.Metrics.LastExecutedAt = &now
	a.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context, filter AgentFilter) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Agent
	for _, a := range s.agents {
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.TenantID != "" && a.TenantID != filter.TenantID {
			continue
		}
		clone := *a
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return storeNotFound("agent", id)
	}
	delete(s.agents, id)
	return nil
}

// --- Mandates ---

func (s *MemoryStore) PutMandate(_ context.Context, m *schema.Mandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *m
	s.mandates[m.MandateID] = &clone
	return nil
}

func (s *MemoryStore) GetMandate(_ context.Context, mandateID string) (*schema.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mandates[mandateID]
	if !ok {
		return nil, storeNotFound("mandate", mandateID)
	}
	clone := *m
	return &clone, nil
}

func (s *MemoryStore) ListChain(_ context.Context, chainID string) ([]*schema.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chain []*schema.Mandate
	for _, m := range s.mandates {
		if m.Chain.ChainID == chainID {
			clone := *m
			chain = append(chain, &clone)
		}
	}
	sort.Slice(chain, func(i, j int) bool {
		return chain[i].Chain.SequenceNumber < chain[j].Chain.SequenceNumber
	})
	return chain, nil
}

// --- Executions ---

func (s *MemoryStore) SaveExecution(_ context.Context, exec *Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *exec
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.execs[exec.ID] = &clone
	return nil
}

func (s *MemoryStore) GetExecution(_ context.Context, id string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.execs[id]
	if !ok {
		return nil, storeNotFound("execution", id)
	}
	clone := *e
	return &clone, nil
}

func (s *MemoryStore) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Execution
	for _, e := range s.execs {
		if filter.AgentID != "" && e.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
			continue
		}
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- Execution Events ---

func (s *MemoryStore) AppendEvent(_ context.Context, event *ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.eventNext[event.ExecutionID] + 1
	s.eventNext[event.ExecutionID] = seq
	clone := *event
	clone.Sequence = seq
	clone.ID = seq
	if clone.Timestamp.IsZero() {
		clone.Timestamp = time.Now().UTC()
	}
	event.Sequence = seq
	s.events[event.ExecutionID] = append(s.events[event.ExecutionID], &clone)
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, executionID string, since int64) ([]*ExecutionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ExecutionEvent
	for _, e := range s.events[executionID] {
		if e.Sequence > since {
			clone := *e
			out = append(out, &clone)
		}
	}
	return out, nil
}

// --- Scheduled Jobs ---

func (s *MemoryStore) CreateScheduledJob(_ context.Context, job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "scheduled job %q already exists", job.ID)
	}
	clone := *job
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemoryStore) GetScheduledJob(_ context.Context, id string) (*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, storeNotFound("scheduled job", id)
	}
	clone := *j
	return &clone, nil
}

func (s *MemoryStore) UpdateScheduledJob(_ context.Context, id string, update ScheduledJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return storeNotFound("scheduled job", id)
	}
	if update.Enabled != nil {
		j.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		j.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		j.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		j.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListScheduledJobs(_ context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ScheduledJob
	for _, j := range s.jobs {
		if filter.Enabled != nil && j.Enabled != *filter.Enabled {
			continue
		}
		if filter.AgentID != "" && j.AgentID != filter.AgentID {
			continue
		}
		clone := *j
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return strings.Compare(out[i].ID, out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteScheduledJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return storeNotFound("scheduled job", id)
	}
	delete(s.jobs, id)
	return nil
}
