package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"sync"
	"testing"
	"time"

	"cyclescope/internal/app"
	"cyclescope/internal/config"
	"cyclescope/internal/db"
	"cyclescope/internal/domain"
	"cyclescope/internal/engine"
	"cyclescope/internal/events"
	"cyclescope/internal/migrate"
	"cyclescope/internal/projection"
	"cyclescope/internal/repo"
	"cyclescope/internal/tracker"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Fake.Seed = 7
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.NewAdapter(cfg, logger)
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	return engine.New(conn, cfg, a, logger)
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t)
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}, Logger: e.Logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func bearer(t *testing.T, actor string, roles ...string) map[string]string {
	t.Helper()
	token, err := SignToken(testSecret, actor, roles, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/snapshot", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", code)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, bearer(t, "alice", RoleAdmin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(body))
	}
	var me MeResponse
	_ = json.Unmarshal(body, &me)
	if me.ActorID != "alice" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", me)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, "alice")

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/snapshot?source=cache", nil, auth)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before first fetch, got %d %s", res.StatusCode, string(body))
	}
	if code := errorCode(t, body); code != "no_snapshot" {
		t.Fatalf("expected no_snapshot, got %q", code)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/snapshot/refresh", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d: %s", res.StatusCode, string(body))
	}
	var refreshed RefreshResponse
	if err := json.Unmarshal(body, &refreshed); err != nil {
		t.Fatalf("unmarshal refresh: %v", err)
	}
	if refreshed.Run.Status != domain.RunSucceeded || refreshed.Run.Bets == 0 {
		t.Fatalf("unexpected run %+v", refreshed.Run)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/snapshot?source=cache", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status %d: %s", res.StatusCode, string(body))
	}
	var stored domain.StoredSnapshot
	_ = json.Unmarshal(body, &stored)
	if stored.RunID != refreshed.Run.ID {
		t.Fatalf("expected run %s, got %s", refreshed.Run.ID, stored.RunID)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projection?source=cache&cycle=current", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("projection status %d: %s", res.StatusCode, string(body))
	}
	var p projection.Projection
	_ = json.Unmarshal(body, &p)
	if p.Cycle == nil || p.Cycle.State != domain.CycleActive {
		t.Fatalf("expected the active cycle to be resolved, got %+v", p.Cycle)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/areas?source=cache", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("areas status %d: %s", res.StatusCode, string(body))
	}
	var areaSlices []projection.AreaSlice
	_ = json.Unmarshal(body, &areaSlices)
	if len(areaSlices) != len(stored.Snapshot.Areas)+1 || areaSlices[0].AreaID != projection.OverviewSliceID {
		t.Fatalf("unexpected slices: %d", len(areaSlices))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/cycles/selected?source=cache", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("selected cycle status %d: %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/validations", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validations status %d: %s", res.StatusCode, string(body))
	}
	var diags validationList
	_ = json.Unmarshal(body, &diags)
	if len(diags.Items) != len(stored.Snapshot.Diagnostics()) {
		t.Fatalf("expected %d diagnostics, got %d", len(stored.Snapshot.Diagnostics()), len(diags.Items))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs/"+refreshed.Run.ID, nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get run status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs/missing", nil, auth)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?type="+events.SnapshotFetched, nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(body))
	}
	var evts paginatedEvents
	_ = json.Unmarshal(body, &evts)
	if len(evts.Items) != 1 || evts.Items[0].ActorID != "alice" {
		t.Fatalf("unexpected events %+v", evts.Items)
	}
}

func TestBadQueryIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, "alice")

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/snapshot?source=disk", nil, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs?cursor=broken", nil, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for cursor, got %d %s", res.StatusCode, string(body))
	}
}

func TestRunsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	auth := bearer(t, "alice")

	for i := 0; i < 3; i++ {
		if _, _, err := srv.Engine.Refresh(context.Background(), "tester"); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	seen := map[string]bool{}
	cursor := ""
	for page := 0; page < 3; page++ {
		url := srv.URL + "/v0/runs?limit=2"
		if cursor != "" {
			url += "&cursor=" + neturl.QueryEscape(cursor)
		}
		res, body := doJSON(t, client, http.MethodGet, url, nil, auth)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("runs status %d: %s", res.StatusCode, string(body))
		}
		var runs paginatedRuns
		_ = json.Unmarshal(body, &runs)
		for _, r := range runs.Items {
			seen[r.ID] = true
		}
		if runs.NextCursor == "" {
			break
		}
		cursor = runs.NextCursor
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct runs across pages, got %d", len(seen))
	}
}

func TestAPIKeys(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := bearer(t, "root", RoleAdmin)

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{"actor_id": "wallboard"}, bearer(t, "alice"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without admin role, got %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/api-keys", map[string]any{"actor_id": "wallboard", "name": "tv"}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(body))
	}
	var created CreatedAPIKeyResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if created.Key == "" || created.ActorID != "wallboard" {
		t.Fatalf("unexpected key %+v", created)
	}

	keyAuth := map[string]string{"X-Api-Key": created.Key}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, keyAuth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(body))
	}
	var me MeResponse
	_ = json.Unmarshal(body, &me)
	if me.ActorID != "wallboard" || me.Source != "api_key" {
		t.Fatalf("unexpected principal %+v", me)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/api-keys", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list keys status %d: %s", res.StatusCode, string(body))
	}
	var keys []APIKeyResponse
	_ = json.Unmarshal(body, &keys)
	if len(keys) != 1 || keys[0].ID != created.ID {
		t.Fatalf("unexpected keys %+v", keys)
	}

	res, body = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/api-keys/"+created.ID, nil, admin)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, keyAuth)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected revoked key to fail, got %d %s", res.StatusCode, string(body))
	}
}

func TestAnonymousAccess(t *testing.T) {
	e := newTestEngine(t)
	handler, err := New(Config{Engine: e, Auth: AuthConfig{AllowAnonymous: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ts := httptest.NewServer(handler)
	defer ts.Close()

	res, body := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/me", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("get-projection")) {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
}

func TestHandleError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{engine.ErrNoSnapshot, http.StatusNotFound, "no_snapshot"},
		{fmt.Errorf("get run: %w", repo.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: %w", engine.ErrFetch, &tracker.APIError{StatusCode: 401, Endpoint: "/search"}), http.StatusBadGateway, "upstream_error"},
		{fmt.Errorf("%w: %w", engine.ErrFetch, errors.New("dial tcp")), http.StatusBadGateway, "upstream_error"},
		{errors.New("severity must be warning or error"), http.StatusBadRequest, "bad_request"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		se := handleError(tc.err)
		ae, ok := se.(*apiError)
		if !ok {
			t.Fatalf("%v: unexpected error type %T", tc.err, se)
		}
		if ae.GetStatus() != tc.status || ae.Body.Code != tc.code {
			t.Fatalf("%v: got %d/%s, want %d/%s", tc.err, ae.GetStatus(), ae.Body.Code, tc.status, tc.code)
		}
	}
}

func TestWebhookDispatcher(t *testing.T) {
	e := newTestEngine(t)
	var (
		mu       sync.Mutex
		received []webhookEvent
		headers  []http.Header
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		received = append(received, evt)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	ctx := context.Background()
	// events written before the dispatcher starts are not replayed
	if err := e.Events.Append(ctx, nil, events.APIKeyCreated, "api_key", "old", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	d := newWebhookDispatcher(e, []config.WebhookConfig{{
		URL:    hook.URL,
		Secret: "s3cret",
		Events: []string{events.SnapshotFetched},
	}}, nil)
	d.dispatchAll(ctx)

	if _, _, err := e.Refresh(ctx, "tester"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := e.Events.Append(ctx, nil, events.APIKeyRevoked, "api_key", "k1", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected one delivery, got %d", len(received))
	}
	if received[0].Type != events.SnapshotFetched || received[0].ActorID != "tester" {
		t.Fatalf("unexpected delivery %+v", received[0])
	}
	if headers[0].Get("X-Cyclescope-Event") != events.SnapshotFetched || headers[0].Get("X-Cyclescope-Secret") != "s3cret" {
		t.Fatalf("unexpected headers %v", headers[0])
	}
	var payload map[string]any
	_ = json.Unmarshal(received[0].Payload, &payload)
	if _, ok := payload["bets"]; !ok {
		t.Fatalf("expected run summary in payload, got %v", payload)
	}
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	e := newTestEngine(t)
	var (
		mu    sync.Mutex
		calls int
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	ctx := context.Background()
	d := newWebhookDispatcher(e, []config.WebhookConfig{{URL: hook.URL}}, nil)
	d.dispatchAll(ctx)
	if err := e.Events.Append(ctx, nil, events.SnapshotFailed, "run", "r1", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected a failed attempt then one success, got %d calls", calls)
	}
}

func TestRefresherTick(t *testing.T) {
	e := newTestEngine(t)
	r := refresher{engine: e, interval: time.Minute, logger: e.Logger}
	r.tick(context.Background())
	runs, err := e.Runs(context.Background(), repo.RunFilters{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != domain.RunSucceeded {
		t.Fatalf("unexpected runs %+v", runs)
	}
}

func TestRunBackgroundStopsWithContext(t *testing.T) {
	e := newTestEngine(t)
	e.Config.Server.RefreshInterval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunBackground(ctx, e, e.Logger)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background workers did not stop")
	}
}
