// Package tracker is the boundary to the external issue tracker. The core only
// consumes the Client interface; Jira is the shipped implementation.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client is the read-only surface the adapters need from the tracker.
type Client interface {
	GetSprints(ctx context.Context, boardID int) ([]Sprint, error)
	SearchIssues(ctx context.Context, query string, fields []string) ([]Issue, error)
}

type Sprint struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	State        string `json:"state"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	CompleteDate string `json:"completeDate,omitempty"`
}

type Issue struct {
	ID     string `json:"id,omitempty"`
	Key    string `json:"key"`
	Fields Fields `json:"fields"`
}

type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type Parent struct {
	ID  string `json:"id,omitempty"`
	Key string `json:"key"`
}

type IssueType struct {
	Name string `json:"name"`
}

// Fields holds the standard issue fields plus every other field under Custom,
// decoded into plain JSON values (string, float64, bool, []any, map[string]any).
type Fields struct {
	Summary     string
	Description string
	Status      *Status
	Assignee    *User
	Labels      []string
	Parent      *Parent
	IssueType   *IssueType
	Sprint      *Sprint
	Custom      map[string]any
}

var standardFields = map[string]bool{
	"summary":     true,
	"description": true,
	"status":      true,
	"assignee":    true,
	"labels":      true,
	"parent":      true,
	"issuetype":   true,
	"sprint":      true,
}

// StandardFields lists the fields every search must request.
func StandardFields() []string {
	return []string{"summary", "description", "status", "assignee", "labels", "parent", "issuetype", "sprint"}
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decode := func(key string, out any) error {
		v, ok := raw[key]
		if !ok || string(v) == "null" {
			return nil
		}
		if err := json.Unmarshal(v, out); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		return nil
	}
	if err := decode("summary", &f.Summary); err != nil {
		return err
	}
	// Jira Cloud may return description as an ADF document; only plain strings are kept.
	if v, ok := raw["description"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			f.Description = s
		}
	}
	if err := decode("status", &f.Status); err != nil {
		return err
	}
	if err := decode("assignee", &f.Assignee); err != nil {
		return err
	}
	if err := decode("labels", &f.Labels); err != nil {
		return err
	}
	if err := decode("parent", &f.Parent); err != nil {
		return err
	}
	if err := decode("issuetype", &f.IssueType); err != nil {
		return err
	}
	if err := decode("sprint", &f.Sprint); err != nil {
		return err
	}
	f.Custom = make(map[string]any)
	for k, v := range raw {
		if standardFields[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		f.Custom[k] = val
	}
	return nil
}

func (f Fields) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Custom)+8)
	for k, v := range f.Custom {
		out[k] = v
	}
	out["summary"] = f.Summary
	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.Status != nil {
		out["status"] = f.Status
	}
	if f.Assignee != nil {
		out["assignee"] = f.Assignee
	}
	if f.Labels != nil {
		out["labels"] = f.Labels
	}
	if f.Parent != nil {
		out["parent"] = f.Parent
	}
	if f.IssueType != nil {
		out["issuetype"] = f.IssueType
	}
	if f.Sprint != nil {
		out["sprint"] = f.Sprint
	}
	return json.Marshal(out)
}

// APIError wraps non-2xx tracker responses.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker api error: status=%d endpoint=%s body=%s", e.StatusCode, e.Endpoint, e.Body)
}
