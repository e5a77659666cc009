package domain

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one ingestion attempt.
type Run struct {
	ID         string `json:"id"`
	Adapter    string `json:"adapter"`
	Status     string `json:"status" enum:"running,succeeded,failed"`
	StartedAt  string `json:"started_at" format:"date-time"`
	FinishedAt string `json:"finished_at,omitempty" format:"date-time"`
	Error      string `json:"error,omitempty"`
	Bets       int    `json:"bets"`
	Items      int    `json:"items"`
	Warnings   int    `json:"warnings"`
	Errors     int    `json:"errors"`
}

// StoredSnapshot is a snapshot persisted by a successful run.
type StoredSnapshot struct {
	RunID     string   `json:"run_id"`
	Adapter   string   `json:"adapter"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	Snapshot  Snapshot `json:"snapshot"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Diagnostic is a ValidationItem recorded against the run that produced it.
type Diagnostic struct {
	RunID string `json:"run_id"`
	ValidationItem
}
