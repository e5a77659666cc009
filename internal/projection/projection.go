// Package projection derives filtered, re-aggregated views from a snapshot.
// Nothing here mutates the snapshot, so one snapshot can be projected from
// many goroutines at once.
package projection

import (
	"strings"
	"time"

	"cyclescope/internal/domain"
	"cyclescope/internal/metrics"
)

// OverviewSliceID names the slice that carries no area constraint.
const OverviewSliceID = "overview"

// CycleSelected is the criteria cycle reference resolved through SelectCycle.
const CycleSelected = "current"

// Options carries the inputs a projection needs besides the snapshot.
type Options struct {
	Now    time.Time
	Status metrics.StatusPolicy
}

// BetView is a roadmap bet with the work items that survived filtering and
// the aggregates recomputed from them.
type BetView struct {
	domain.RoadmapBet
	Area      string            `json:"area"`
	Team      string            `json:"team"`
	Objective string            `json:"objective,omitempty"`
	WorkItems []domain.WorkItem `json:"workItems"`
	Effort    metrics.Rollup    `json:"effort"`
}

type Projection struct {
	Criteria    domain.FilterCriteria `json:"criteria"`
	Cycle       *domain.Cycle         `json:"cycle,omitempty"`
	RoadmapBets []BetView             `json:"roadmapBets"`
	Summary     metrics.Summary       `json:"summary"`
}

// AreaSlice is one per-area projection.
type AreaSlice struct {
	AreaID     string     `json:"areaId"`
	Name       string     `json:"name"`
	Projection Projection `json:"projection"`
}

type matcher struct {
	area       string
	objectives map[string]bool
	stages     map[string]bool
	assignees  map[string]bool
	cycleSet   bool
	cycleID    string
}

func newMatcher(c domain.FilterCriteria, cycle *domain.Cycle) matcher {
	m := matcher{
		area:       c.Area,
		objectives: toSet(c.ObjectiveIDs, false),
		stages:     toSet(c.StageIDs, true),
		assignees:  toSet(c.AssigneeIDs, false),
	}
	if m.assignees[domain.AllAssigneesID] {
		m.assignees = nil
	}
	if c.Cycle != "" {
		m.cycleSet = true
		if cycle != nil {
			m.cycleID = cycle.ID
		}
	}
	return m
}

func (m matcher) betMatches(b domain.RoadmapBet) bool {
	if len(m.objectives) == 0 {
		return true
	}
	return b.ObjectiveID != nil && m.objectives[*b.ObjectiveID]
}

func (m matcher) itemMatches(w domain.WorkItem) bool {
	if m.area != "" && !containsString(w.AreaIDs, m.area) {
		return false
	}
	if len(m.stages) > 0 && !m.stages[strings.ToLower(w.Stage)] {
		return false
	}
	if len(m.assignees) > 0 && !m.assignees[w.AssigneeID] {
		return false
	}
	if m.cycleSet {
		if m.cycleID == "" || w.CycleID == nil || *w.CycleID != m.cycleID {
			return false
		}
	}
	return true
}

// Filter prunes the snapshot to the work items matching c, drops bets left
// empty and recomputes every bet aggregate from the surviving items.
func Filter(s domain.Snapshot, c domain.FilterCriteria, opts Options) Projection {
	cycle := resolveCycle(s.Cycles, c.Cycle, opts.Now)
	return filterWith(s, c, cycle, indexItems(s.WorkItems), objectiveNames(s.Objectives), opts)
}

func filterWith(s domain.Snapshot, c domain.FilterCriteria, cycle *domain.Cycle, byBet map[string][]domain.WorkItem, objNames map[string]string, opts Options) Projection {
	m := newMatcher(c, cycle)
	bets := []BetView{}
	rollups := []metrics.Rollup{}
	for _, b := range s.RoadmapBets {
		if !m.betMatches(b) {
			continue
		}
		var kept []domain.WorkItem
		for _, w := range byBet[b.ID] {
			if m.itemMatches(w) {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			continue
		}
		v := BetView{
			RoadmapBet: b,
			Area:       joinDistinct(kept, func(w domain.WorkItem) []string { return w.AreaIDs }),
			Team:       joinDistinct(kept, func(w domain.WorkItem) []string { return w.TeamIDs }),
			WorkItems:  kept,
			Effort:     metrics.RollupOf(kept, opts.Status),
		}
		if b.ObjectiveID != nil {
			v.Objective = objNames[*b.ObjectiveID]
		}
		bets = append(bets, v)
		rollups = append(rollups, v.Effort)
	}
	return Projection{
		Criteria:    c,
		Cycle:       cycle,
		RoadmapBets: bets,
		Summary:     metrics.Summarize(rollups),
	}
}

// SliceByArea runs Filter once with no area constraint (the overview slice)
// and once per snapshot area.
func SliceByArea(s domain.Snapshot, c domain.FilterCriteria, opts Options) []AreaSlice {
	cycle := resolveCycle(s.Cycles, c.Cycle, opts.Now)
	byBet := indexItems(s.WorkItems)
	objNames := objectiveNames(s.Objectives)
	out := make([]AreaSlice, 0, len(s.Areas)+1)
	out = append(out, AreaSlice{
		AreaID:     OverviewSliceID,
		Name:       "Overview",
		Projection: filterWith(s, c.WithArea(""), cycle, byBet, objNames, opts),
	})
	for _, a := range s.Areas {
		out = append(out, AreaSlice{
			AreaID:     a.ID,
			Name:       a.Name,
			Projection: filterWith(s, c.WithArea(a.ID), cycle, byBet, objNames, opts),
		})
	}
	return out
}

func resolveCycle(cycles []domain.Cycle, ref string, now time.Time) *domain.Cycle {
	c, ok := ResolveCycle(cycles, ref, now)
	if !ok {
		return nil
	}
	return &c
}

func indexItems(items []domain.WorkItem) map[string][]domain.WorkItem {
	out := make(map[string][]domain.WorkItem)
	for _, w := range items {
		out[w.RoadmapBetID] = append(out[w.RoadmapBetID], w)
	}
	return out
}

func objectiveNames(objs []domain.Objective) map[string]string {
	out := make(map[string]string, len(objs))
	for _, o := range objs {
		out[o.ID] = o.Name
	}
	return out
}

func joinDistinct(items []domain.WorkItem, ids func(domain.WorkItem) []string) string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range items {
		for _, id := range ids(w) {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return strings.Join(out, ", ")
}

func toSet(ids []string, lower bool) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if lower {
			id = strings.ToLower(id)
		}
		out[id] = true
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
