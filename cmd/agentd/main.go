package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/IOUser755/AP2-01-sub000/internal/engine"
	"github.com/IOUser755/AP2-01-sub000/internal/expressions"
	"github.com/IOUser755/AP2-01-sub000/internal/logging"
	"github.com/IOUser755/AP2-01-sub000/internal/mandate"
	"github.com/IOUser755/AP2-01-sub000/internal/planner"
	"github.com/IOUser755/AP2-01-sub000/internal/scheduler"
	"github.com/IOUser755/AP2-01-sub000/internal/store"
	"github.com/IOUser755/AP2-01-sub000/internal/streaming"
	"github.com/IOUser755/AP2-01-sub000/internal/tools"
	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(cfg, os.Args[2:])
	case "validate":
		err = cmdValidate(cfg, os.Args[2:])
	case "serve":
		err = cmdServe(cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentd:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  agentd run <graph.json> [vars.json]   execute a workflow graph once
  agentd validate <graph.json>          validate a workflow graph
  agentd serve                          run the scheduler loop`)
}

// runtime bundles everything a subcommand needs.
type runtime struct {
	logger *slog.Logger
	store  store.Store
	tools  *tools.Registry
	eval   *expressions.Evaluator
	chain  *mandate.Chain
	engine *engine.Engine
}

func buildRuntime(cfg Config) (*runtime, error) {
	logger := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	eval, err := expressions.NewEvaluator(logger)
	if err != nil {
		return nil, fmt.Errorf("build evaluator: %w", err)
	}

	reg := tools.NewRegistry()
	if err := tools.RegisterBuiltins(reg, eval, &tools.LogMailer{Logger: logger}, tools.HTTPConfig{}, logger); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	chain := mandate.NewChain(st, mandate.Config{ApprovalThreshold: cfg.ApprovalThreshold}, logger)

	hub := streaming.NewMemoryHub()
	sink := streaming.NewPersistentSink(store.NewEventLog(st), hub, logger)

	eng, err := engine.New(engine.Deps{
		Agents:     store.NewAgentRepository(st),
		Tools:      reg,
		Evaluator:  eval,
		Mandates:   chain,
		Events:     sink,
		Executions: st,
		Logger:     logger,
	}, engine.Config{DefaultTimeoutMs: cfg.StepTimeoutMs})
	if err != nil {
		return nil, err
	}

	return &runtime{
		logger: logger,
		store:  st,
		tools:  reg,
		eval:   eval,
		chain:  chain,
		engine: eng,
	}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func loadGraph(path string) (*schema.WorkflowGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	var g schema.WorkflowGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	return &g, nil
}

func cmdRun(cfg Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("run: graph file required")
	}
	g, err := loadGraph(args[0])
	if err != nil {
		return err
	}

	vars := map[string]any{}
	if len(args) > 1 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read variables: %w", err)
		}
		if err := json.Unmarshal(data, &vars); err != nil {
			return fmt.Errorf("parse variables: %w", err)
		}
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	ctx := context.Background()
	agentID := g.AgentID
	if agentID == "" {
		agentID = uuid.NewString()
		g.AgentID = agentID
	}
	agent := &store.Agent{
		ID:     agentID,
		Name:   filepath.Base(args[0]),
		Status: store.AgentActive,
		Graph:  *g,
	}
	if err := rt.store.CreateAgent(ctx, agent); err != nil {
		// An agent persisted by an earlier run with the same ID is fine.
		var agErr *schema.AgentError
		if !errors.As(err, &agErr) || agErr.Code != schema.ErrCodeConflict {
			return fmt.Errorf("register agent: %w", err)
		}
	}

	result, err := rt.engine.Execute(ctx, agentID, schema.ExecutionRequest{
		InitiatorID: "agentd",
		Variables:   vars,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if result.Status != schema.ExecutionCompleted {
		os.Exit(1)
	}
	return nil
}

func cmdValidate(cfg Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("validate: graph file required")
	}
	g, err := loadGraph(args[0])
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	validator, err := planner.NewValidator(rt.tools)
	if err != nil {
		return err
	}
	vr := validator.Validate(g)

	out, err := json.MarshalIndent(vr, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !vr.Valid() {
		os.Exit(1)
	}
	return nil
}

func cmdServe(cfg Config) error {
	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(rt.store, rt.engine, rt.logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		rt.logger.Warn("missed job recovery failed", "error", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	rt.logger.Info("agentd serving", "db_path", cfg.DBPath)

	<-ctx.Done()
	return sched.Stop()
}
