package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"pkginstall/internal/config"
	"pkginstall/internal/engine"
	"pkginstall/internal/handler"
	"pkginstall/internal/journal"
	"pkginstall/internal/logging"
	"pkginstall/internal/precondition"
	"pkginstall/internal/rollback"
	"pkginstall/internal/snapshot"
)

// appContext wires the long-lived dependencies shared by every subcommand.
// It is built once in the root command's PersistentPreRunE and threaded
// through via closures, matching the teacher's command-context pattern.
type appContext struct {
	configPath string
	logLevel   string
	verbose    bool
	quiet      bool
	format     string

	cfg    *config.Config
	logger *slog.Logger
	store  *journal.Store
	reg    *handler.Registry
	snap   *snapshot.Snapshotter
	eng    *engine.Engine

	correlationID string
}

func newAppContext() *appContext {
	return &appContext{correlationID: uuid.NewString()}
}

// ensure loads configuration, opens the journal, wires the engine, and
// recovers any transaction a previous process crashed while executing. It
// is idempotent: later calls reuse what was already built.
func (a *appContext) ensure(ctx context.Context) error {
	if a.eng != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	level := a.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if a.verbose {
		level = "debug"
	}
	if a.quiet {
		level = "error"
	}
	logger, err := logging.NewFromConfig(cfg.LogFormat, level, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	logger = logger.With(logging.String("correlation_id", a.correlationID))

	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	store, err := journal.Open(cfg)
	if err != nil {
		return fmt.Errorf("open transaction journal: %w", err)
	}

	reg := handler.Default(cfg.PlaybookDir)
	snapper := snapshot.New(cfg.SnapshotDir)
	roller := rollback.New(store, reg, logger)
	eng := engine.New(cfg, store, snapper, reg, roller, logger)

	a.cfg = cfg
	a.logger = logger
	a.store = store
	a.reg = reg
	a.snap = snapper
	a.eng = eng

	if _, err := eng.RecoverPending(ctx); err != nil {
		return fmt.Errorf("recover pending transactions: %w", err)
	}
	return nil
}

// requirePrivilege fails fast, per spec.md §6's privilege requirement, when
// the process lacks sufficient privilege to perform host-mutating
// operations. Callers that accept --force decide for themselves whether to
// bypass this; requirePrivilege always enforces it.
func (a *appContext) requirePrivilege() error {
	return precondition.Evaluate([]precondition.Result{precondition.CheckPrivilege()})
}

// wantsJSON reports whether output should be newline-delimited JSON rather
// than a rendered table, per the --format flag.
func (a *appContext) wantsJSON() bool {
	return a.format == "json"
}

func (a *appContext) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}
