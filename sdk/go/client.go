package cyclescopesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal cyclescope HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  30 * time.Second,
	}
}

// Run is one ingestion attempt.
type Run struct {
	ID         string `json:"id"`
	Adapter    string `json:"adapter"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Error      string `json:"error,omitempty"`
	Bets       int    `json:"bets"`
	Items      int    `json:"items"`
	Warnings   int    `json:"warnings"`
	Errors     int    `json:"errors"`
}

type Cycle struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	DeliveryDate string `json:"deliveryDate,omitempty"`
	State        string `json:"state"`
}

type Diagnostic struct {
	RunID       string `json:"run_id"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	SubjectID   string `json:"subjectId"`
}

type WorkItem struct {
	ID           string       `json:"id"`
	TicketID     string       `json:"ticketId"`
	Name         string       `json:"name"`
	Effort       *float64     `json:"effort,omitempty"`
	AreaIDs      []string     `json:"areaIds"`
	TeamIDs      []string     `json:"teamIds"`
	Status       string       `json:"status"`
	Stage        string       `json:"stage"`
	AssigneeID   string       `json:"assigneeId"`
	Validations  []Diagnostic `json:"validations"`
	RoadmapBetID string       `json:"roadmapBetId"`
	CycleID      *string      `json:"cycleId,omitempty"`
}

// Snapshot is the partial snapshot shape; unknown fields are ignored.
type Snapshot struct {
	Cycles      []Cycle          `json:"cycles"`
	RoadmapBets []map[string]any `json:"roadmapBets"`
	WorkItems   []WorkItem       `json:"workItems"`
	Areas       []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"areas"`
}

type StoredSnapshot struct {
	RunID     string   `json:"run_id"`
	Adapter   string   `json:"adapter"`
	CreatedAt string   `json:"created_at"`
	Snapshot  Snapshot `json:"snapshot"`
}

// Summary aggregates effort across the bets of a projection.
type Summary struct {
	TotalEffort       float64 `json:"totalEffort"`
	DoneEffort        float64 `json:"doneEffort"`
	InProgressEffort  float64 `json:"inProgressEffort"`
	PercentDone       float64 `json:"percentDone"`
	PercentInProgress float64 `json:"percentInProgress"`
}

type BetView struct {
	ID        string     `json:"id"`
	TicketID  string     `json:"ticketId"`
	Name      string     `json:"name"`
	Area      string     `json:"area"`
	Team      string     `json:"team"`
	Objective string     `json:"objective,omitempty"`
	WorkItems []WorkItem `json:"workItems"`
}

type Projection struct {
	Cycle       *Cycle    `json:"cycle,omitempty"`
	RoadmapBets []BetView `json:"roadmapBets"`
	Summary     Summary   `json:"summary"`
}

type AreaSlice struct {
	AreaID     string     `json:"areaId"`
	Name       string     `json:"name"`
	Projection Projection `json:"projection"`
}

type CycleReport struct {
	Cycle    Cycle          `json:"cycle"`
	Calendar map[string]any `json:"calendar"`
	Summary  Summary        `json:"summary"`
}

// Criteria narrows projections. Empty fields impose no constraint.
type Criteria struct {
	Area       string
	Objectives []string
	Stages     []string
	Assignees  []string
	Cycle      string
	Source     string
}

func (c Criteria) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("area", c.Area)
	set("objective", strings.Join(c.Objectives, ","))
	set("stage", strings.Join(c.Stages, ","))
	set("assignee", strings.Join(c.Assignees, ","))
	set("cycle", c.Cycle)
	set("source", c.Source)
	return v
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
	// Key is only set in the response that created it.
	Key string `json:"key,omitempty"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedRuns wraps run listings with cursors.
type PaginatedRuns struct {
	Items      []Run  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Refresh triggers a fresh ingestion run.
func (c *Client) Refresh(ctx context.Context) (Run, error) {
	var resp struct {
		Run Run `json:"run"`
	}
	err := c.do(ctx, http.MethodPost, "snapshot/refresh", nil, &resp)
	return resp.Run, err
}

// Snapshot returns the latest snapshot. source is auto, cache or live.
func (c *Client) Snapshot(ctx context.Context, source string) (StoredSnapshot, error) {
	var resp StoredSnapshot
	err := c.do(ctx, http.MethodGet, withQuery("snapshot", url.Values{"source": nonEmpty(source)}), nil, &resp)
	return resp, err
}

// Projection filters the snapshot by criteria.
func (c *Client) Projection(ctx context.Context, criteria Criteria) (Projection, error) {
	var resp Projection
	err := c.do(ctx, http.MethodGet, withQuery("projection", criteria.values()), nil, &resp)
	return resp, err
}

// Areas returns the overview slice followed by one slice per area.
func (c *Client) Areas(ctx context.Context, criteria Criteria) ([]AreaSlice, error) {
	var resp []AreaSlice
	err := c.do(ctx, http.MethodGet, withQuery("areas", criteria.values()), nil, &resp)
	return resp, err
}

// SelectedCycle reports the selected cycle.
func (c *Client) SelectedCycle(ctx context.Context, source string) (CycleReport, error) {
	var resp CycleReport
	err := c.do(ctx, http.MethodGet, withQuery("cycles/selected", url.Values{"source": nonEmpty(source)}), nil, &resp)
	return resp, err
}

// Validations lists the diagnostics of a run; an empty runID means the
// latest snapshot.
func (c *Client) Validations(ctx context.Context, runID, severity string) ([]Diagnostic, error) {
	var resp struct {
		Items []Diagnostic `json:"items"`
	}
	q := url.Values{"run_id": nonEmpty(runID), "severity": nonEmpty(severity)}
	err := c.do(ctx, http.MethodGet, withQuery("validations", q), nil, &resp)
	return resp.Items, err
}

// RunsPage returns a page of runs, newest first.
func (c *Client) RunsPage(ctx context.Context, limit int, cursor string) (PaginatedRuns, error) {
	q := url.Values{"cursor": nonEmpty(cursor)}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp PaginatedRuns
	err := c.do(ctx, http.MethodGet, withQuery("runs", q), nil, &resp)
	return resp, err
}

// Run fetches one run by id.
func (c *Client) Run(ctx context.Context, id string) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodGet, "runs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{"cursor": nonEmpty(cursor)}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

// CreateAPIKey issues a key for actorID. Requires the admin role.
func (c *Client) CreateAPIKey(ctx context.Context, actorID, name string) (APIKey, error) {
	body := map[string]any{"actor_id": actorID, "name": name}
	var resp APIKey
	err := c.do(ctx, http.MethodPost, "api-keys", body, &resp)
	return resp, err
}

// RevokeAPIKey deletes a key.
func (c *Client) RevokeAPIKey(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api-keys/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath
}

func withQuery(endpoint string, q url.Values) string {
	for k, v := range q {
		if len(v) == 0 || v[0] == "" {
			q.Del(k)
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func nonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}
