package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclescope/internal/db"
	"cyclescope/internal/domain"
	"cyclescope/internal/events"
	"cyclescope/internal/migrate"
	"cyclescope/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return repo.Repo{DB: conn}
}

func TestRunsAndSnapshots(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)

	_, err := r.LatestSnapshot(ctx, "")
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	for i, id := range []string{"run-1", "run-2"} {
		started := time.Date(2024, 4, 1+i, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
		run := domain.Run{ID: id, Adapter: "fake", Status: domain.RunRunning, StartedAt: started}
		require.NoError(t, r.InsertRun(ctx, nil, run))
		run.Status = domain.RunSucceeded
		run.FinishedAt = started
		run.Bets = i + 1
		require.NoError(t, r.FinishRun(ctx, nil, run))
		snap := domain.Snapshot{RoadmapBets: []domain.RoadmapBet{{ID: id + "-bet", Labels: []string{}}}}
		require.NoError(t, r.SaveSnapshot(ctx, nil, domain.StoredSnapshot{RunID: id, Adapter: "fake", CreatedAt: started, Snapshot: snap}))
	}

	latest, err := r.LatestSnapshot(ctx, "fake")
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
	require.Len(t, latest.Snapshot.RoadmapBets, 1)
	assert.Equal(t, "run-2-bet", latest.Snapshot.RoadmapBets[0].ID)

	_, err = r.LatestSnapshot(ctx, "org")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	runs, err := r.ListRuns(ctx, repo.RunFilters{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 2, runs[0].Bets)

	page, err := r.ListRuns(ctx, repo.RunFilters{Limit: 1, CursorStartedAt: runs[0].StartedAt, CursorID: runs[0].ID})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "run-1", page[0].ID)

	pruned, err := r.PruneSnapshots(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)
	_, err = r.GetSnapshot(ctx, "run-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = r.GetRun(ctx, "run-1")
	assert.NoError(t, err)

	err = r.FinishRun(ctx, nil, domain.Run{ID: "missing"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDiagnostics(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	require.NoError(t, r.InsertRun(ctx, nil, domain.Run{ID: "run-1", Adapter: "fake", Status: domain.RunSucceeded, StartedAt: "2024-04-01T00:00:00Z"}))
	items := []domain.ValidationItem{
		{ID: "a", Code: "missing_effort", Severity: domain.SeverityWarning, Description: "no effort", SubjectID: "I-1"},
		{ID: "b", Code: "missing_effort", Severity: domain.SeverityWarning, Description: "no effort", SubjectID: "I-2"},
		{ID: "c", Code: "invalid_parent", Severity: domain.SeverityError, Description: "bad parent", SubjectID: "I-2"},
	}
	require.NoError(t, r.InsertDiagnostics(ctx, nil, "run-1", items))

	all, err := r.ListDiagnostics(ctx, repo.DiagnosticFilters{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "run-1", all[0].RunID)

	errs, err := r.ListDiagnostics(ctx, repo.DiagnosticFilters{Severity: "error"})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "I-2", errs[0].SubjectID)

	counts, err := r.CountDiagnosticsByCode(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"missing_effort": 2, "invalid_parent": 1}, counts)
}

func TestEventsCursor(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	w := events.Writer{DB: r.DB, Now: func() time.Time { return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) }}

	latest, err := r.LatestEventID(ctx)
	require.NoError(t, err)
	assert.Zero(t, latest)

	require.NoError(t, w.Append(ctx, nil, events.SnapshotFetched, "run", "run-1", "", events.EventPayload{"bets": 3}))
	require.NoError(t, w.Append(ctx, nil, events.SnapshotFailed, "run", "run-2", "tester", nil))

	after, err := r.EventsAfter(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, events.SnapshotFetched, after[0].Type)
	assert.Equal(t, "system", after[0].ActorID)
	assert.JSONEq(t, `{"bets":3}`, after[0].Payload)

	newest, err := r.LatestEvents(ctx, 10, 0, events.SnapshotFailed, "")
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "run-2", newest[0].EntityID)

	latest, err = r.LatestEventID(ctx)
	require.NoError(t, err)
	rest, err := r.EventsAfter(ctx, 10, latest)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestAPIKeys(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	plain, key, err := repo.GenerateAPIKey("ops", "ci", time.Now())
	require.NoError(t, err)
	assert.Contains(t, plain, repo.APIKeyPrefix)
	assert.NotEqual(t, plain, key.KeyHash)
	require.NoError(t, r.InsertAPIKey(ctx, nil, key))

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(" "+plain+" "))
	require.NoError(t, err)
	assert.Equal(t, "ops", got.ActorID)
	assert.Equal(t, "ci", got.Name)

	keys, err := r.ListAPIKeys(ctx, "ops")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, key.ID))
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, key.ID), repo.ErrNotFound)
	_, err = r.GetAPIKeyByHash(ctx, key.KeyHash)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
