package projection

import (
	"sort"
	"time"

	"cyclescope/internal/domain"
)

// SelectCycle picks "the" cycle of a snapshot. Cycles are ordered by start
// date; the first active cycle wins, then the first not-closed cycle starting
// after now, then the first closed cycle, then the earliest cycle.
func SelectCycle(cycles []domain.Cycle, now time.Time) (domain.Cycle, bool) {
	if len(cycles) == 0 {
		return domain.Cycle{}, false
	}
	sorted := append([]domain.Cycle(nil), cycles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartDate < sorted[j].StartDate })

	today := now.Format("2006-01-02")
	tiers := []func(domain.Cycle) bool{
		func(c domain.Cycle) bool { return c.State == domain.CycleActive },
		func(c domain.Cycle) bool {
			return c.State != domain.CycleClosed && c.StartDate != "" && c.StartDate > today
		},
		func(c domain.Cycle) bool { return c.State == domain.CycleClosed },
	}
	for _, match := range tiers {
		for _, c := range sorted {
			if match(c) {
				return c, true
			}
		}
	}
	return sorted[0], true
}

// ResolveCycle turns a criteria cycle reference into a cycle. An empty
// reference resolves to nothing; CycleSelected runs SelectCycle; anything else
// is matched by id.
func ResolveCycle(cycles []domain.Cycle, ref string, now time.Time) (domain.Cycle, bool) {
	switch ref {
	case "":
		return domain.Cycle{}, false
	case CycleSelected:
		return SelectCycle(cycles, now)
	}
	for _, c := range cycles {
		if c.ID == ref {
			return c, true
		}
	}
	return domain.Cycle{}, false
}
