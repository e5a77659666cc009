package tracker

import (
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

const defaultPageSize = 100

// Jira is a minimal Jira Cloud REST client covering the agile sprint listing
// and the issue search endpoints.
type Jira struct {
	BaseURL    string
	Email      string
	Token      string
	PageSize   int
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewJira creates a client with sane defaults.
func NewJira(baseURL, email, token string) *Jira {
	return &Jira{
		BaseURL:    baseURL,
		Email:      email,
		Token:      token,
		PageSize:   defaultPageSize,
		Timeout:    30 * time.Second,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type sprintPage struct {
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	IsLast     bool     `json:"isLast"`
	Values     []Sprint `json:"values"`
}

type searchPage struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// GetSprints lists every sprint of a board, following pagination.
func (c *Jira) GetSprints(ctx context.Context, boardID int) ([]Sprint, error) {
	var out []Sprint
	startAt := 0
	for {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(c.pageSize()))
		endpoint := fmt.Sprintf("rest/agile/1.0/board/%d/sprint?%s", boardID, q.Encode())
		var page sprintPage
		if err := c.do(ctx, http.MethodGet, endpoint, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Values...)
		if page.IsLast || len(page.Values) == 0 {
			return out, nil
		}
		startAt += len(page.Values)
	}
}

// SearchIssues runs a JQL query and returns every matching issue.
func (c *Jira) SearchIssues(ctx context.Context, query string, fields []string) ([]Issue, error) {
	var out []Issue
	startAt := 0
	for {
		q := url.Values{}
		q.Set("jql", query)
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(c.pageSize()))
		if len(fields) > 0 {
			q.Set("fields", strings.Join(fields, ","))
		}
		var page searchPage
		if err := c.do(ctx, http.MethodGet, "rest/api/2/search?"+q.Encode(), &page); err != nil {
			return nil, err
		}
		out = append(out, page.Issues...)
		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			return out, nil
		}
	}
}

func (c *Jira) pageSize() int {
	if c.PageSize <= 0 {
		return defaultPageSize
	}
	return c.PageSize
}

func (c *Jira) do(ctx context.Context, method, endpoint string, out any) error {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	switch {
	case c.Email != "" && c.Token != "":
		req.SetBasicAuth(c.Email, c.Token)
	case c.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Jira) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
