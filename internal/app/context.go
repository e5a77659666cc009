// Package app wires config, storage, the tracker client, the adapter and the
// engine into one environment shared by the CLI and the server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"cyclescope/internal/adapter"
	"cyclescope/internal/config"
	"cyclescope/internal/db"
	"cyclescope/internal/engine"
	"cyclescope/internal/migrate"
	"cyclescope/internal/tracker"
)

// Options are the per-invocation overrides layered over cyclescope.yml.
type Options struct {
	Workspace  string
	ConfigPath string
	Adapter    string
	BaseURL    string
	Email      string
	Token      string
	Logger     *slog.Logger
}

// Env is an opened workspace.
type Env struct {
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
	Logger *slog.Logger
}

// LoadConfig reads the workspace config, or the explicit path when set, and
// applies the overrides before validating.
func LoadConfig(opts Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.FromFile(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(opts.Workspace)
	}
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(opts.Adapter); v != "" {
		cfg.Adapter = v
	}
	if v := strings.TrimSpace(opts.BaseURL); v != "" {
		cfg.Tracker.BaseURL = v
	}
	if v := strings.TrimSpace(opts.Email); v != "" {
		cfg.Tracker.Email = v
	}
	if v := strings.TrimSpace(opts.Token); v != "" {
		cfg.Tracker.Token = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Open loads config, migrates the workspace database and builds the engine.
func Open(ctx context.Context, opts Options) (*Env, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a, err := NewAdapter(cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Env{
		Config: cfg,
		DB:     conn,
		Engine: engine.New(conn, cfg, a, logger),
		Logger: logger,
	}, nil
}

// NewAdapter builds the configured adapter. The fake adapter never talks to
// the tracker, so no client is created for it.
func NewAdapter(cfg *config.Config, logger *slog.Logger) (adapter.Adapter, error) {
	deps := adapter.Deps{Config: cfg, Logger: logger}
	if cfg.Adapter != config.AdapterFake {
		client := tracker.NewJira(cfg.Tracker.BaseURL, cfg.Tracker.Email, cfg.Tracker.Token)
		if cfg.Tracker.PageSize > 0 {
			client.PageSize = cfg.Tracker.PageSize
		}
		if cfg.Tracker.Timeout > 0 {
			client.Timeout = cfg.Tracker.Timeout
			client.HTTPClient = &http.Client{Timeout: cfg.Tracker.Timeout}
		}
		deps.Client = client
	}
	return adapter.FromConfig(deps)
}

func (e *Env) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}
