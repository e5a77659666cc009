// Package engine orchestrates ingestion runs, the snapshot cache and the
// projections served to the CLI and the HTTP API.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cyclescope/internal/adapter"
	"cyclescope/internal/config"
	"cyclescope/internal/domain"
	"cyclescope/internal/events"
	"cyclescope/internal/metrics"
	"cyclescope/internal/projection"
	"cyclescope/internal/repo"
)

// ErrNoSnapshot is returned when the cache is empty and a live fetch was not
// requested.
var ErrNoSnapshot = errors.New("no snapshot cached; run cyc snapshot fetch")

// ErrFetch wraps adapter failures returned by Refresh.
var ErrFetch = errors.New("fetch snapshot")

// Source selects where a snapshot comes from.
type Source string

const (
	// SourceAuto reads the cache and fetches only when it is empty.
	SourceAuto  Source = "auto"
	SourceCache Source = "cache"
	SourceLive  Source = "live"
)

// ParseSource validates a source name; empty means SourceAuto.
func ParseSource(s string) (Source, error) {
	switch src := Source(s); src {
	case "":
		return SourceAuto, nil
	case SourceAuto, SourceCache, SourceLive:
		return src, nil
	}
	return "", fmt.Errorf("unknown snapshot source %q (want auto, cache or live)", s)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Adapter adapter.Adapter
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, a adapter.Adapter, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Adapter: a,
		Logger:  logger,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(timeLayout)
}

// Options returns the projection options for the current moment.
func (e Engine) Options() projection.Options {
	status := metrics.DefaultStatusPolicy()
	if e.Config != nil {
		status = metrics.PolicyFromConfig(e.Config.Org)
	}
	return projection.Options{Now: e.now(), Status: status}
}

// Refresh runs the adapter once and records the outcome. A failed fetch is
// logged in the run table and the event log before the error is returned.
func (e Engine) Refresh(ctx context.Context, actorID string) (domain.Run, domain.Snapshot, error) {
	if e.Adapter == nil {
		return domain.Run{}, domain.Snapshot{}, errors.New("adapter not configured")
	}
	run := domain.Run{
		ID:        uuid.NewString(),
		Adapter:   string(e.Adapter.Kind()),
		Status:    domain.RunRunning,
		StartedAt: e.stamp(),
	}
	if err := e.Repo.InsertRun(ctx, nil, run); err != nil {
		return run, domain.Snapshot{}, fmt.Errorf("record run: %w", err)
	}
	log := e.logger().With("run", run.ID, "adapter", run.Adapter)
	log.Info("snapshot refresh started")

	snap, fetchErr := e.Adapter.FetchSnapshot(ctx)
	run.FinishedAt = e.stamp()
	// bookkeeping must land even when ctx was canceled mid-fetch
	bctx := context.WithoutCancel(ctx)

	if fetchErr != nil {
		run.Status = domain.RunFailed
		run.Error = fetchErr.Error()
		if err := e.finish(bctx, run, nil, actorID); err != nil {
			log.Error("record failed run", "err", err)
		}
		log.Error("snapshot refresh failed", "err", fetchErr)
		return run, domain.Snapshot{}, fmt.Errorf("%w: %w", ErrFetch, fetchErr)
	}

	counts := snap.CountDiagnostics()
	run.Status = domain.RunSucceeded
	run.Bets = len(snap.RoadmapBets)
	run.Items = len(snap.WorkItems)
	run.Warnings = counts.Warnings
	run.Errors = counts.Errors
	if err := e.finish(bctx, run, &snap, actorID); err != nil {
		return run, domain.Snapshot{}, err
	}
	log.Info("snapshot refresh finished", "bets", run.Bets, "items", run.Items, "warnings", run.Warnings, "errors", run.Errors)

	if e.Config != nil && e.Config.Server.KeepSnapshots > 0 {
		if n, err := e.Repo.PruneSnapshots(bctx, e.Config.Server.KeepSnapshots); err != nil {
			log.Warn("prune snapshots", "err", err)
		} else if n > 0 {
			log.Debug("pruned snapshots", "count", n)
		}
	}
	return run, snap, nil
}

func (e Engine) finish(ctx context.Context, run domain.Run, snap *domain.Snapshot, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	payload := events.EventPayload{"adapter": run.Adapter}
	evtType := events.SnapshotFailed
	if snap != nil {
		evtType = events.SnapshotFetched
		stored := domain.StoredSnapshot{RunID: run.ID, Adapter: run.Adapter, CreatedAt: run.FinishedAt, Snapshot: *snap}
		if err := e.Repo.SaveSnapshot(ctx, tx, stored); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
		if err := e.Repo.InsertDiagnostics(ctx, tx, run.ID, snap.Diagnostics()); err != nil {
			return fmt.Errorf("store diagnostics: %w", err)
		}
		payload["bets"] = run.Bets
		payload["items"] = run.Items
		payload["warnings"] = run.Warnings
		payload["errors"] = run.Errors
	} else {
		payload["error"] = run.Error
	}
	if err := e.Repo.FinishRun(ctx, tx, run); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if err := e.Events.Append(ctx, tx, evtType, "run", run.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// Snapshot returns a snapshot from src.
func (e Engine) Snapshot(ctx context.Context, src Source) (domain.StoredSnapshot, error) {
	if src == SourceLive {
		return e.refreshStored(ctx)
	}
	kind := ""
	if e.Adapter != nil {
		kind = string(e.Adapter.Kind())
	}
	stored, err := e.Repo.LatestSnapshot(ctx, kind)
	switch {
	case err == nil:
		return stored, nil
	case !errors.Is(err, repo.ErrNotFound):
		return domain.StoredSnapshot{}, fmt.Errorf("load cached snapshot: %w", err)
	case src == SourceCache:
		return domain.StoredSnapshot{}, ErrNoSnapshot
	}
	return e.refreshStored(ctx)
}

func (e Engine) refreshStored(ctx context.Context) (domain.StoredSnapshot, error) {
	run, snap, err := e.Refresh(ctx, "")
	if err != nil {
		return domain.StoredSnapshot{}, err
	}
	return domain.StoredSnapshot{RunID: run.ID, Adapter: run.Adapter, CreatedAt: run.FinishedAt, Snapshot: snap}, nil
}

// Project filters the snapshot by c.
func (e Engine) Project(ctx context.Context, c domain.FilterCriteria, src Source) (projection.Projection, error) {
	stored, err := e.Snapshot(ctx, src)
	if err != nil {
		return projection.Projection{}, err
	}
	return projection.Filter(stored.Snapshot, c, e.Options()), nil
}

// Areas returns the overview slice followed by one slice per area.
func (e Engine) Areas(ctx context.Context, c domain.FilterCriteria, src Source) ([]projection.AreaSlice, error) {
	stored, err := e.Snapshot(ctx, src)
	if err != nil {
		return nil, err
	}
	return projection.SliceByArea(stored.Snapshot, c, e.Options()), nil
}

// CycleReport describes the selected cycle of a snapshot.
type CycleReport struct {
	Cycle    domain.Cycle     `json:"cycle"`
	Calendar metrics.Calendar `json:"calendar"`
	Summary  metrics.Summary  `json:"summary"`
	// Areas holds the per-area summaries within the cycle.
	Areas []AreaSummary `json:"areas"`
}

type AreaSummary struct {
	AreaID  string          `json:"areaId"`
	Name    string          `json:"name"`
	Summary metrics.Summary `json:"summary"`
}

// SelectedCycle reports the selected cycle with its calendar and progress.
func (e Engine) SelectedCycle(ctx context.Context, src Source) (CycleReport, error) {
	stored, err := e.Snapshot(ctx, src)
	if err != nil {
		return CycleReport{}, err
	}
	opts := e.Options()
	cycle, ok := projection.SelectCycle(stored.Snapshot.Cycles, opts.Now)
	if !ok {
		return CycleReport{}, fmt.Errorf("snapshot has no cycles: %w", repo.ErrNotFound)
	}
	cal, _ := metrics.CalendarOf(cycle, opts.Now)
	criteria := domain.FilterCriteria{Cycle: cycle.ID}
	slices := projection.SliceByArea(stored.Snapshot, criteria, opts)
	report := CycleReport{Cycle: cycle, Calendar: cal, Summary: slices[0].Projection.Summary, Areas: []AreaSummary{}}
	for _, s := range slices[1:] {
		report.Areas = append(report.Areas, AreaSummary{AreaID: s.AreaID, Name: s.Name, Summary: s.Projection.Summary})
	}
	return report, nil
}

// ValidationQuery narrows Validations. An empty RunID means the run of the
// latest cached snapshot.
type ValidationQuery struct {
	RunID     string
	Severity  string
	Code      string
	SubjectID string
	Limit     int
}

func (e Engine) Validations(ctx context.Context, q ValidationQuery) ([]domain.Diagnostic, error) {
	if q.Severity != "" && q.Severity != string(domain.SeverityWarning) && q.Severity != string(domain.SeverityError) {
		return nil, fmt.Errorf("severity must be warning or error")
	}
	runID := q.RunID
	if runID == "" {
		stored, err := e.Snapshot(ctx, SourceCache)
		if err != nil {
			return nil, err
		}
		runID = stored.RunID
	}
	return e.Repo.ListDiagnostics(ctx, repo.DiagnosticFilters{
		RunID:     runID,
		Severity:  q.Severity,
		Code:      q.Code,
		SubjectID: q.SubjectID,
		Limit:     q.Limit,
	})
}

func (e Engine) Runs(ctx context.Context, f repo.RunFilters) ([]domain.Run, error) {
	return e.Repo.ListRuns(ctx, f)
}

func (e Engine) Run(ctx context.Context, id string) (domain.Run, error) {
	return e.Repo.GetRun(ctx, id)
}

func (e Engine) ListEvents(ctx context.Context, limit int, cursor int64, evtType string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, cursor, evtType, "")
}

// CreateAPIKey issues a key for actorID. The plaintext is returned once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name, createdBy string) (string, domain.APIKey, error) {
	if actorID == "" {
		return "", domain.APIKey{}, errors.New("actor is required")
	}
	plain, key, err := repo.GenerateAPIKey(actorID, name, e.now())
	if err != nil {
		return "", domain.APIKey{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyCreated, "api_key", key.ID, createdBy, events.EventPayload{"actor_id": actorID, "name": name}); err != nil {
		return "", domain.APIKey{}, err
	}
	if err := tx.Commit(); err != nil {
		return "", domain.APIKey{}, err
	}
	return plain, key, nil
}

func (e Engine) RevokeAPIKey(ctx context.Context, id, revokedBy string) error {
	if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
		return err
	}
	return e.Events.Append(ctx, nil, events.APIKeyRevoked, "api_key", id, revokedBy, nil)
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}
