package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Agents ---

func (s *LibSQLStore) CreateAgent(ctx context.Context, agent *Agent) error {
	graph, err := json.Marshal(agent.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	metrics, err := json.Marshal(agent.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	status := agent.Status
	if status == "" {
		status = AgentDraft
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, tenant_id, status, graph, metrics, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.ID, agent.Name, nullStr(agent.TenantID), string(status),
		string(graph), string(metrics), timeOrNow(agent.CreatedAt), timeOrNow(agent.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tenant_id, status, graph, metrics, created_at, updated_at
		 FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("agent", id)
	}
	return a, err
}

func (s *LibSQLStore) UpdateAgentStatus(ctx context.Context, id string, status AgentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", id)
}

// UpdateAgentMetrics folds one execution outcome into the agent's
// accumulated metrics as a read-modify-write inside a transaction.
func (s *LibSQLStore) UpdateAgentMetrics(ctx context.Context, id string, success bool, durationMs int64, cost float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT metrics FROM agents WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return storeNotFound("agent", id)
	}
	if err != nil {
		return err
	}

	var m AgentMetrics
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	m.Executions++
	if success {
		m.Successes++
	} else {
		m.Failures++
	}
	m.TotalDurationMs += durationMs
	m.TotalCost += cost
	now := time.Now().UTC()
	m.LastExecutedAt = &now

	updated, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET metrics = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(updated), id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListAgents(ctx context.Context, filter AgentFilter) ([]*Agent, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}

	query := `SELECT id, name, tenant_id, status, graph, metrics, created_at, updated_at FROM agents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *LibSQLStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", id)
}

func scanAgent(scan func(...any) error) (*Agent, error) {
	a := &Agent{}
	var tenantID sql.NullString
	var status, graphJSON, metricsJSON string
	if err := scan(&a.ID, &a.Name, &tenantID, &status, &graphJSON, &metricsJSON, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.TenantID = tenantID.String
	a.Status = AgentStatus(status)
	if err := json.Unmarshal([]byte(graphJSON), &a.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	if metricsJSON != "" {
		if err := json.Unmarshal([]byte(metricsJSON), &a.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
	}
	return a, nil
}

// --- Mandates ---

func (s *LibSQLStore) PutMandate(ctx context.Context, m *schema.Mandate) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mandate: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mandates (mandate_id, chain_id, sequence_number, type, status, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(mandate_id) DO UPDATE SET
		   chain_id=excluded.chain_id, sequence_number=excluded.sequence_number,
		   type=excluded.type, status=excluded.status, body=excluded.body,
		   updated_at=excluded.updated_at`,
		m.MandateID, m.Chain.ChainID, m.Chain.SequenceNumber, string(m.Type), string(m.Status),
		string(body), timeOrNow(m.CreatedAt), timeOrNow(m.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetMandate(ctx context.Context, mandateID string) (*schema.Mandate, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM mandates WHERE mandate_id = ?`, mandateID,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("mandate", mandateID)
	}
	if err != nil {
		return nil, err
	}
	m := &schema.Mandate{}
	if err := json.Unmarshal([]byte(body), m); err != nil {
		return nil, fmt.Errorf("unmarshal mandate: %w", err)
	}
	return m, nil
}

func (s *LibSQLStore) ListChain(ctx context.Context, chainID string) ([]*schema.Mandate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM mandates WHERE chain_id = ? ORDER BY sequence_number ASC`, chainID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chain []*schema.Mandate
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		m := &schema.Mandate{}
		if err := json.Unmarshal([]byte(body), m); err != nil {
			return nil, fmt.Errorf("unmarshal mandate: %w", err)
		}
		chain = append(chain, m)
	}
	return chain, rows.Err()
}

// --- Executions ---

func (s *LibSQLStore) SaveExecution(ctx context.Context, exec *Execution) error {
	var result any
	if exec.Result != nil {
		raw, err := json.Marshal(exec.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = string(raw)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, agent_id, tenant_id, initiator_id, status, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, result=excluded.result`,
		exec.ID, exec.AgentID, nullStr(exec.TenantID), nullStr(exec.InitiatorID),
		string(exec.Status), result, timeOrNow(exec.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, tenant_id, initiator_id, status, result, created_at
		 FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	return e, err
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, agent_id, tenant_id, initiator_id, status, result, created_at FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		e, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

func scanExecution(scan func(...any) error) (*Execution, error) {
	e := &Execution{}
	var tenantID, initiatorID, result sql.NullString
	var status string
	if err := scan(&e.ID, &e.AgentID, &tenantID, &initiatorID, &status, &result, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.TenantID = tenantID.String
	e.InitiatorID = initiatorID.String
	e.Status = schema.ExecutionStatus(status)
	if result.Valid && result.String != "" {
		e.Result = &schema.ExecutionResult{}
		if err := json.Unmarshal([]byte(result.String), e.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return e, nil
}

// --- Execution Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *ExecutionEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Next sequence number for this execution.
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM execution_events WHERE execution_id = ?`,
		event.ExecutionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO execution_events (execution_id, step_id, topic, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExecutionID, nullStr(event.StepID), event.Topic, nullRaw(event.Payload),
		event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, executionID string, since int64) ([]*ExecutionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, topic, payload, timestamp, sequence
		 FROM execution_events WHERE execution_id = ? AND sequence > ? ORDER BY sequence ASC`,
		executionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*ExecutionEvent
	for rows.Next() {
		e := &ExecutionEvent{}
		var stepID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &stepID, &e.Topic, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.StepID = stepID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Scheduled Jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	vars, err := marshalMapOrNil(job.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, agent_id, cron_expression, variables, initiator_id, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.AgentID, job.CronExpression, vars, nullStr(job.InitiatorID),
		boolInt(job.Enabled), nullTime(job.LastRunAt), nullTime(job.NextRunAt),
		nullStr(job.LastRunStatus), timeOrNow(job.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, cron_expression, variables, initiator_id, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_jobs WHERE id = ?`, id)
	j, err := scanScheduledJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scheduled job", id)
	}
	return j, err
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any

	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}

	query := `SELECT id, agent_id, cron_expression, variables, initiator_id, enabled, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled job", id)
}

func scanScheduledJob(scan func(...any) error) (*ScheduledJob, error) {
	j := &ScheduledJob{}
	var vars, initiatorID, lastStatus sql.NullString
	var enabled int
	var lastRun, nextRun sql.NullTime
	if err := scan(&j.ID, &j.AgentID, &j.CronExpression, &vars, &initiatorID, &enabled,
		&lastRun, &nextRun, &lastStatus, &j.CreatedAt); err != nil {
		return nil, err
	}
	if vars.Valid && vars.String != "" {
		if err := json.Unmarshal([]byte(vars.String), &j.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	j.InitiatorID = initiatorID.String
	j.Enabled = enabled != 0
	j.LastRunStatus = lastStatus.String
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}
	return j, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.AgentError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalMapOrNil(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
