package cyclescopesdk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclescope/internal/app"
	"cyclescope/internal/config"
	"cyclescope/internal/db"
	"cyclescope/internal/engine"
	"cyclescope/internal/migrate"
	"cyclescope/internal/server"
)

const secret = "sdk-secret"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))

	cfg := config.Default()
	cfg.Fake.Seed = 3
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.NewAdapter(cfg, logger)
	require.NoError(t, err)
	handler, err := server.New(server.Config{
		Engine: engine.New(conn, cfg, a, logger),
		Auth:   server.AuthConfig{JWTSecret: secret},
		Logger: logger,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func newClient(t *testing.T, baseURL string, roles ...string) *Client {
	t.Helper()
	token, err := server.SignToken(secret, "sdk", roles, time.Hour)
	require.NoError(t, err)
	c := New(baseURL)
	c.BearerToken = token
	return c
}

func TestClientRoundTrip(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()
	c := newClient(t, ts.URL)

	_, err := c.Snapshot(ctx, "cache")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "no_snapshot", apiErr.Code)

	run, err := c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", run.Status)

	snap, err := c.Snapshot(ctx, "cache")
	require.NoError(t, err)
	assert.Equal(t, run.ID, snap.RunID)
	require.NotEmpty(t, snap.Snapshot.Areas)

	area := snap.Snapshot.Areas[0].ID
	p, err := c.Projection(ctx, Criteria{Area: area, Cycle: "current"})
	require.NoError(t, err)
	require.NotNil(t, p.Cycle)
	for _, b := range p.RoadmapBets {
		for _, w := range b.WorkItems {
			assert.Contains(t, w.AreaIDs, area)
		}
	}

	slices, err := c.Areas(ctx, Criteria{})
	require.NoError(t, err)
	assert.Len(t, slices, len(snap.Snapshot.Areas)+1)

	report, err := c.SelectedCycle(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "active", report.Cycle.State)

	diags, err := c.Validations(ctx, "", "")
	require.NoError(t, err)
	for _, d := range diags {
		assert.Equal(t, run.ID, d.RunID)
	}

	page, err := c.RunsPage(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	got, err := c.Run(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Bets, got.Bets)

	events, err := c.EventsPage(ctx, 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, events.Items)
	assert.Equal(t, "snapshot.fetched", events.Items[0].Type)
}

func TestClientAPIKeys(t *testing.T) {
	ts := newServer(t)
	ctx := context.Background()
	admin := newClient(t, ts.URL, server.RoleAdmin)

	key, err := admin.CreateAPIKey(ctx, "wallboard", "tv")
	require.NoError(t, err)
	require.NotEmpty(t, key.Key)

	viaKey := New(ts.URL)
	viaKey.APIKey = key.Key
	_, err = viaKey.Refresh(ctx)
	require.NoError(t, err)

	_, err = viaKey.CreateAPIKey(ctx, "other", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	require.NoError(t, admin.RevokeAPIKey(ctx, key.ID))
	_, err = viaKey.Snapshot(ctx, "cache")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestWithQueryDropsBlanks(t *testing.T) {
	assert.Equal(t, "runs", withQuery("runs", nil))
	assert.Equal(t, "snapshot?source=live", withQuery("snapshot", map[string][]string{"source": {"live"}, "cursor": nil}))
	assert.Equal(t, "projection?area=payments&stage=s1%2Cs2",
		withQuery("projection", Criteria{Area: "payments", Stages: []string{"s1", "s2"}}.values()))
}
