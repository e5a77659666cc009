// Package metrics rolls work-item effort up into bet- and cycle-level
// summaries. Every function is pure.
package metrics

import (
	"math"
	"time"

	"cyclescope/internal/config"
	"cyclescope/internal/domain"
)

// StatusPolicy decides which statuses count as done or in progress.
type StatusPolicy struct {
	Done       []string
	InProgress []string
}

// DefaultStatusPolicy matches the statuses produced by the default status map.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{Done: []string{domain.StatusDone}, InProgress: []string{domain.StatusInProgress}}
}

func PolicyFromConfig(org config.Org) StatusPolicy {
	p := StatusPolicy{Done: org.Buckets.Done, InProgress: org.Buckets.InProgress}
	if len(p.Done) == 0 && len(p.InProgress) == 0 {
		return DefaultStatusPolicy()
	}
	return p
}

func (p StatusPolicy) IsDone(status string) bool { return contains(p.Done, status) }

func (p StatusPolicy) IsInProgress(status string) bool { return contains(p.InProgress, status) }

// ItemEffort returns the numeric effort of w; missing or non-finite effort is 0.
func ItemEffort(w domain.WorkItem) float64 {
	if w.Effort == nil {
		return 0
	}
	e := *w.Effort
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return 0
	}
	return e
}

// Effort sums effort across items.
func Effort(items []domain.WorkItem) float64 {
	var total float64
	for _, w := range items {
		total += ItemEffort(w)
	}
	return total
}

// Rollup is the effort of a set of work items split by status bucket.
type Rollup struct {
	Total      float64 `json:"total"`
	Done       float64 `json:"done"`
	InProgress float64 `json:"inProgress"`
	Todo       float64 `json:"todo"`
	Items      int     `json:"items"`
	DoneItems  int     `json:"doneItems"`
}

// RollupOf buckets items by status according to p.
func RollupOf(items []domain.WorkItem, p StatusPolicy) Rollup {
	var r Rollup
	for _, w := range items {
		e := ItemEffort(w)
		r.Total += e
		r.Items++
		switch {
		case p.IsDone(w.Status):
			r.Done += e
			r.DoneItems++
		case p.IsInProgress(w.Status):
			r.InProgress += e
		default:
			r.Todo += e
		}
	}
	return r
}

// Summary is the cycle-level combination of bet rollups.
type Summary struct {
	TotalEffort       float64 `json:"totalEffort"`
	DoneEffort        float64 `json:"doneEffort"`
	InProgressEffort  float64 `json:"inProgressEffort"`
	TodoEffort        float64 `json:"todoEffort"`
	PercentDone       float64 `json:"percentDone"`
	PercentInProgress float64 `json:"percentInProgress"`
	Bets              int     `json:"bets"`
	Items             int     `json:"items"`
	DoneItems         int     `json:"doneItems"`
}

// Summarize combines per-bet rollups into one summary.
func Summarize(rollups []Rollup) Summary {
	s := Summary{Bets: len(rollups)}
	for _, r := range rollups {
		s.TotalEffort += r.Total
		s.DoneEffort += r.Done
		s.InProgressEffort += r.InProgress
		s.TodoEffort += r.Todo
		s.Items += r.Items
		s.DoneItems += r.DoneItems
	}
	s.PercentDone = percent(s.DoneEffort, s.TotalEffort)
	s.PercentInProgress = percent(s.InProgressEffort, s.TotalEffort)
	return s
}

// Calendar describes where "now" sits inside a cycle, in whole days.
type Calendar struct {
	StartDate      string  `json:"startDate"`
	EndDate        string  `json:"endDate"`
	TotalDays      int     `json:"totalDays"`
	ElapsedDays    int     `json:"elapsedDays"`
	RemainingDays  int     `json:"remainingDays"`
	TotalWeeks     int     `json:"totalWeeks"`
	ElapsedWeeks   int     `json:"elapsedWeeks"`
	RemainingWeeks int     `json:"remainingWeeks"`
	PercentElapsed float64 `json:"percentElapsed"`
	Started        bool    `json:"started"`
	Finished       bool    `json:"finished"`
}

const dateLayout = "2006-01-02"

// CalendarOf derives calendar metadata for c at now. Both bounds are
// inclusive. It reports false when the cycle dates cannot be parsed.
func CalendarOf(c domain.Cycle, now time.Time) (Calendar, bool) {
	start, err := time.Parse(dateLayout, c.StartDate)
	if err != nil {
		return Calendar{}, false
	}
	end, err := time.Parse(dateLayout, c.EndDate)
	if err != nil || end.Before(start) {
		return Calendar{}, false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	total := daysBetween(start, end) + 1
	elapsed := daysBetween(start, today)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > total {
		elapsed = total
	}
	remaining := total - elapsed
	return Calendar{
		StartDate:      c.StartDate,
		EndDate:        c.EndDate,
		TotalDays:      total,
		ElapsedDays:    elapsed,
		RemainingDays:  remaining,
		TotalWeeks:     ceilDiv(total, 7),
		ElapsedWeeks:   elapsed / 7,
		RemainingWeeks: ceilDiv(remaining, 7),
		PercentElapsed: percent(float64(elapsed), float64(total)),
		Started:        !today.Before(start),
		Finished:       today.After(end),
	}, true
}

func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(part/whole*1000) / 10
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
