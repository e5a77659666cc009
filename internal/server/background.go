package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"

	"cyclescope/internal/engine"
)

// refresher re-ingests on a fixed interval. Failed runs are already recorded
// by the engine, so it only logs them and waits for the next tick.
type refresher struct {
	engine   engine.Engine
	interval time.Duration
	logger   *slog.Logger
}

func (r refresher) run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r refresher) tick(ctx context.Context) {
	run, _, err := r.engine.Refresh(ctx, "refresher")
	switch {
	case err == nil:
		r.logger.Info("scheduled refresh done", "run", run.ID, "warnings", run.Warnings, "errors", run.Errors)
	case errors.Is(err, context.Canceled):
	default:
		r.logger.Warn("scheduled refresh failed", "run", run.ID, "err", err)
	}
}

// RunBackground runs the scheduled refresher and the webhook dispatcher until
// ctx is done. Both are no-ops when unconfigured.
func RunBackground(ctx context.Context, e engine.Engine, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if e.Config == nil {
		return
	}
	r := refresher{engine: e, interval: e.Config.Server.RefreshInterval, logger: logger.With("component", "refresher")}
	d := newWebhookDispatcher(e, e.Config.Server.Webhooks, logger)

	var wg conc.WaitGroup
	wg.Go(func() { r.run(ctx) })
	wg.Go(func() { d.run(ctx) })
	wg.Wait()
}
