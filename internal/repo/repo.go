// Package repo is the SQL layer over the workspace cache.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cyclescope/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) execWith(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

const runColumns = `id,adapter,status,started_at,COALESCE(finished_at,''),COALESCE(error,''),bets,items,warnings,errors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var run domain.Run
	err := row.Scan(&run.ID, &run.Adapter, &run.Status, &run.StartedAt, &run.FinishedAt, &run.Error,
		&run.Bets, &run.Items, &run.Warnings, &run.Errors)
	if err == sql.ErrNoRows {
		return run, ErrNotFound
	}
	return run, err
}

// InsertRun records a run as it starts.
func (r Repo) InsertRun(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	if run.ID == "" {
		return errors.New("run id required")
	}
	_, err := r.execWith(tx).ExecContext(ctx, `INSERT INTO runs(id,adapter,status,started_at,finished_at,error,bets,items,warnings,errors) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Adapter, run.Status, run.StartedAt, nullable(run.FinishedAt), nullable(run.Error),
		run.Bets, run.Items, run.Warnings, run.Errors)
	return err
}

// FinishRun stores the outcome of a run.
func (r Repo) FinishRun(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	res, err := r.execWith(tx).ExecContext(ctx, `UPDATE runs SET status=?, finished_at=?, error=?, bets=?, items=?, warnings=?, errors=? WHERE id=?`,
		run.Status, nullable(run.FinishedAt), nullable(run.Error), run.Bets, run.Items, run.Warnings, run.Errors, run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return scanRun(r.DB.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id=?`, id))
}

// RunFilters narrows ListRuns. Cursor pages by started_at, then id.
type RunFilters struct {
	Status          string
	Adapter         string
	Limit           int
	CursorStartedAt string
	CursorID        string
}

// ListRuns returns runs newest first.
func (r Repo) ListRuns(ctx context.Context, f RunFilters) ([]domain.Run, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Adapter != "" {
		clauses = append(clauses, "adapter=?")
		args = append(args, f.Adapter)
	}
	if f.CursorStartedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(started_at < ? OR (started_at = ? AND id < ?))")
		args = append(args, f.CursorStartedAt, f.CursorStartedAt, f.CursorID)
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY started_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

// SaveSnapshot stores the snapshot produced by run.
func (r Repo) SaveSnapshot(ctx context.Context, tx *sql.Tx, s domain.StoredSnapshot) error {
	payload, err := json.Marshal(s.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.execWith(tx).ExecContext(ctx, `INSERT INTO snapshots(run_id,adapter,created_at,snapshot_json) VALUES (?,?,?,?)`,
		s.RunID, s.Adapter, s.CreatedAt, string(payload))
	return err
}

// LatestSnapshot returns the most recent stored snapshot, optionally for one
// adapter kind.
func (r Repo) LatestSnapshot(ctx context.Context, adapter string) (domain.StoredSnapshot, error) {
	query := `SELECT run_id,adapter,created_at,snapshot_json FROM snapshots`
	var args []any
	if adapter != "" {
		query += ` WHERE adapter=?`
		args = append(args, adapter)
	}
	query += ` ORDER BY created_at DESC, run_id DESC LIMIT 1`
	return scanSnapshot(r.DB.QueryRowContext(ctx, query, args...))
}

func (r Repo) GetSnapshot(ctx context.Context, runID string) (domain.StoredSnapshot, error) {
	return scanSnapshot(r.DB.QueryRowContext(ctx, `SELECT run_id,adapter,created_at,snapshot_json FROM snapshots WHERE run_id=?`, runID))
}

func scanSnapshot(row *sql.Row) (domain.StoredSnapshot, error) {
	var s domain.StoredSnapshot
	var payload string
	err := row.Scan(&s.RunID, &s.Adapter, &s.CreatedAt, &payload)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(payload), &s.Snapshot); err != nil {
		return s, fmt.Errorf("decode snapshot %s: %w", s.RunID, err)
	}
	return s, nil
}

// PruneSnapshots keeps the newest keep snapshots. Runs stay in the log.
func (r Repo) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM snapshots WHERE run_id NOT IN (
SELECT run_id FROM snapshots ORDER BY created_at DESC, run_id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const eventColumns = `id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,COALESCE(payload_json,'')`

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns events newest first, below cursor when set.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, evtType, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE `+strings.Join(clauses, " AND ")+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
