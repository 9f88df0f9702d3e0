package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/IOUser755/AP2-01-sub000/internal/store"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// AgentRunner is the interface the scheduler uses to start executions.
// Satisfied by the engine (avoids import cycle).
type AgentRunner interface {
	Execute(ctx context.Context, agentID string, req schema.ExecutionRequest) (*schema.ExecutionResult, error)
}

const defaultTickInterval = 60 * time.Second

// Scheduler polls the store for due scheduled jobs and runs them.
type Scheduler struct {
	store    store.Store
	runner   AgentRunner
	parser   cron.Parser
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	running  sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner AgentRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		interval: defaultTickInterval,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Schedule registers a recurring run of an agent and computes its first
// due time from the cron expression.
func (s *Scheduler) Schedule(ctx context.Context, agentID, cronExpr string, variables map[string]any, initiatorID string) (*store.ScheduledJob, error) {
	next, err := s.CalculateNextRun(cronExpr, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	job := &store.ScheduledJob{
		ID:             uuid.NewString(),
		AgentID:        agentID,
		CronExpression: cronExpr,
		Variables:      variables,
		InitiatorID:    initiatorID,
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateScheduledJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("scheduled job created",
		slog.String("job_id", job.ID),
		slog.String("agent_id", agentID),
		slog.String("cron", cronExpr),
	)
	return job, nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled jobs and runs those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list scheduled jobs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, job := range jobs {
		if job.NextRunAt == nil || !job.NextRunAt.After(now) {
			if !s.tryAcquire(job.ID) {
				continue // already running (dedup)
			}
			// Dispatch asynchronously so a slow execution does not
			// hold back the other due jobs or the tick loop itself.
			s.running.Add(1)
			go func(job *store.ScheduledJob) {
				defer s.running.Done()
				defer s.releaseJob(job.ID)
				if err := s.runJob(ctx, job, now); err != nil {
					s.logger.Error("failed to run scheduled job",
						slog.String("job_id", job.ID),
						slog.String("error", err.Error()),
					)
				}
			}(job)
		}
	}
}

// runJob starts one execution for a due job and updates its timestamps.
func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("agent_id", job.AgentID),
	)

	result, err := s.runner.Execute(ctx, job.AgentID, schema.ExecutionRequest{
		InitiatorID: job.InitiatorID,
		Variables:   job.Variables,
		Metadata:    map[string]string{"scheduled_job_id": job.ID},
	})

	status := "success"
	switch {
	case err != nil:
		status = "error"
		s.logger.Error("scheduled job execution failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	case result.Status != schema.ExecutionCompleted:
		status = string(result.Status)
	}

	return s.updateJobStatus(ctx, job, now, status)
}

func (s *Scheduler) updateJobStatus(ctx context.Context, job *store.ScheduledJob, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(job.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for job %q: %w", job.ID, err)
	}

	return s.store.UpdateScheduledJob(ctx, job.ID, store.ScheduledJobUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
	})
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

// releaseJob removes the job from the in-flight set.
func (s *Scheduler) releaseJob(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.running.Wait()
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed checks for jobs that missed their next_run_at and runs them once.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed jobs: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, job := range jobs {
		if job.NextRunAt != nil && job.NextRunAt.Before(now) {
			if !s.tryAcquire(job.ID) {
				continue
			}
			if err := s.runJob(ctx, job, now); err != nil {
				s.logger.Error("failed to recover missed job",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
				s.releaseJob(job.ID)
				continue
			}
			s.releaseJob(job.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed jobs", slog.Int("count", recovered))
	}
	return nil
}
