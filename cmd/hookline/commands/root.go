// Package commands implements the hookline CLI commands using cobra.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/delaney/hookline/internal/audit"
	"github.com/delaney/hookline/internal/config"
	"github.com/delaney/hookline/internal/daemon"
	"github.com/delaney/hookline/internal/engine"
	"github.com/delaney/hookline/internal/index"
	"github.com/delaney/hookline/internal/logging"
	"github.com/delaney/hookline/internal/state"
	"github.com/delaney/hookline/internal/store"
)

var (
	// Version is set at build time
	Version = "0.1.0"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "hookline",
	Short: "Event-driven hook automation and workflow state engine",
	Long: `Hookline ingests workflow events into an append-only log, runs
matching hook scripts as sandboxed subprocesses, and reconstructs
workflow state by replaying the log.

Declare hooks in hooks.yaml and feed events through 'hookline emit'
or the inbox watched by 'hookline watch'.`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
}

// app bundles the components most commands need. Close in reverse
// construction order.
type app struct {
	cfg        *config.Config
	store      *store.Store
	audit      *audit.Logger
	index      *index.Index // nil when disabled
	dispatcher *engine.Dispatcher
	pipeline   *daemon.Pipeline
	machine    *state.Machine
}

// openApp loads config, initializes logging, and wires the component
// graph.
func openApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{
		Level:         cfg.Logging.Level,
		Dir:           cfg.Logging.Dir,
		Format:        cfg.Logging.Format,
		RetentionDays: cfg.Logging.RetentionDays,
	}); err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	s, err := store.Open(cfg.EventsDir(),
		store.WithMaxFileSize(cfg.Store.MaxFileSize),
		store.WithRetentionDays(cfg.Store.RetentionDays),
	)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.New(cfg.AuditPath(),
		audit.WithMaxSize(cfg.Audit.MaxSize),
		audit.WithBackups(cfg.Audit.Backups),
	)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	var ix *index.Index
	if cfg.Store.Index {
		ix, err = index.Open(cfg.IndexPath())
		if err != nil {
			_ = auditLog.Close()
			_ = s.Close()
			return nil, err
		}
	}

	opts := []engine.ExecutorOption{}
	if cfg.Hooks.WorkDir != "" {
		opts = append(opts, engine.WithWorkDir(cfg.Hooks.WorkDir))
	}
	if len(cfg.Hooks.EnvAllowlist) > 0 || len(cfg.Hooks.Env) > 0 {
		allow := cfg.Hooks.EnvAllowlist
		if len(allow) == 0 {
			allow = engine.DefaultEnvAllowlist
		}
		opts = append(opts, engine.WithEnv(allow, cfg.Hooks.Env))
	}
	executor := engine.NewExecutor(cfg.HooksDir, auditLog, opts...)
	dispatcher := engine.NewDispatcher(cfg.Manifest, cfg.HooksDir, executor)

	return &app{
		cfg:        cfg,
		store:      s,
		audit:      auditLog,
		index:      ix,
		dispatcher: dispatcher,
		pipeline:   daemon.NewPipeline(s, ix, dispatcher, cfg.AgentID),
		machine:    state.NewMachine(s),
	}, nil
}

func (a *app) close() {
	if a.index != nil {
		_ = a.index.Close()
	}
	_ = a.audit.Close()
	_ = a.store.Close()
}
