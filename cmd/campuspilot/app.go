package main

import (
	"campuspilot/internal/action"
	"campuspilot/internal/audit"
	"campuspilot/internal/config"
	"campuspilot/internal/conversation"
	"campuspilot/internal/logging"
	"campuspilot/internal/perception"
	"campuspilot/internal/pipeline"
	"campuspilot/internal/records"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// App holds the wired pipeline and its stores for one process.
type App struct {
	Config   *config.Config
	Runtime  *config.Runtime
	States   conversation.Store
	Audit    *audit.Store
	Records  records.Client
	Pipeline *pipeline.Pipeline
	Undoer   *action.Undoer

	closers []func() error
}

// buildApp loads configuration and assembles every component. Callers
// must Close when done.
func buildApp(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ws := filepath.Dir(filepath.Dir(configPath))
	if err := logging.Initialize(ws); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	boot := logging.Get(logging.CategoryBoot)
	boot.Info("starting: mode=%s state_backend=%s", cfg.Autonomy.Mode, cfg.State.Backend)

	app := &App{Config: cfg, Runtime: config.NewRuntime(cfg)}
	app.closers = append(app.closers, func() error { logging.Close(); return nil })

	states, stateClose, err := buildStateStore(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.States = states
	if stateClose != nil {
		app.closers = append(app.closers, stateClose)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Audit.DatabasePath), 0o755); err != nil {
		app.Close()
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	auditStore, err := audit.NewStore(cfg.Audit.DatabasePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	app.Audit = auditStore
	app.closers = append(app.closers, auditStore.Close)

	app.Records = records.NewHTTPClient(cfg.Records.BaseURL, cfg.GetRecordsTimeout())

	var oracle perception.Oracle
	if cfg.Oracle.Enabled && cfg.Oracle.APIKey != "" {
		oracle, err = perception.NewGenAIOracle(cfg.Oracle.APIKey, cfg.Oracle.Model,
			cfg.GetOracleTimeout(), cfg.Oracle.ConfidenceCap)
		if err != nil {
			boot.Warn("oracle disabled: %v", err)
			oracle = nil
		}
	}

	exec := action.NewExecutor(app.Records, auditStore, cfg.Audit.RecordFailures)
	app.Undoer = action.NewUndoer(app.Records, auditStore, cfg.GetUndoWindow())
	app.Pipeline = pipeline.New(app.Runtime, oracle, states, exec, app.Records)

	return app, nil
}

// buildStateStore picks the configured backend; sqlite failures degrade
// to memory instead of refusing to start.
func buildStateStore(cfg *config.Config) (conversation.Store, func() error, error) {
	if cfg.State.Backend == "memory" {
		return conversation.NewMemoryStore(), nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.State.DatabasePath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}
	durable, err := conversation.NewSQLiteStore(cfg.State.DatabasePath)
	if err != nil {
		logging.Get(logging.CategoryState).Warn("sqlite state unavailable, using memory: %v", err)
		return conversation.NewMemoryStore(), nil, nil
	}
	return conversation.NewFailoverStore(durable), durable.Close, nil
}

// Watch starts config hot-reload in the background.
func (a *App) Watch(ctx context.Context, configPath string, logger *zap.Logger) {
	go func() {
		if err := a.Runtime.Watch(ctx, configPath, logger); err != nil {
			logging.Get(logging.CategoryBoot).Warn("config watch stopped: %v", err)
		}
	}()
}

// Close releases stores in reverse wiring order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
