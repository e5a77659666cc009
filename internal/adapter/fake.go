package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"cyclescope/internal/domain"
	"cyclescope/internal/extract"
	"cyclescope/internal/validate"
)

const defaultFakeBets = 8

var (
	fakeAreas = []domain.Area{
		{ID: "payments", Name: "Payments"},
		{ID: "growth", Name: "Growth"},
		{ID: "platform", Name: "Platform"},
	}
	fakeTeamSuffixes = []string{"core", "web"}
	fakeObjectives   = []domain.Objective{
		{ID: "obj-revenue", Name: "Grow revenue"},
		{ID: "obj-retention", Name: "Improve retention"},
		{ID: "obj-reliability", Name: "Raise reliability"},
	}
	fakePeople = []domain.Person{
		{ID: "u-ada", Name: "Ada Lovelace"},
		{ID: "u-alan", Name: "Alan Turing"},
		{ID: "u-barbara", Name: "Barbara Liskov"},
		{ID: "u-grace", Name: "Grace Hopper"},
		{ID: "u-ken", Name: "Ken Thompson"},
		{ID: "u-margaret", Name: "Margaret Hamilton"},
	}
	fakeThemes = []string{"Checkout", "Onboarding", "Search", "Billing", "Notifications", "Reporting", "Sync", "Pricing"}
	fakeNouns  = []string{"revamp", "v2", "cleanup", "launch", "migration", "experiment"}
	fakeEffort = []float64{1, 2, 3, 5, 8}
)

// fakeNamespace seeds uuid.NewSHA1 for generated ids.
var fakeNamespace = uuid.MustParse("5b0c7a52-3f44-4c8e-9a1e-6f1f6f0c2d11")

// FakeAdapter generates a plausible snapshot without calling a tracker.
// Cycles follow two-month Shape-Up windows: one past, one active and two
// future, anchored on the current date.
type FakeAdapter struct {
	seed   uint64
	bets   int
	now    func() time.Time
	rules  validate.Policy
	logger *slog.Logger
}

func newFake(deps Deps) *FakeAdapter {
	bets := deps.Config.Fake.Bets
	if bets <= 0 {
		bets = defaultFakeBets
	}
	return &FakeAdapter{
		seed:   deps.Config.Fake.Seed,
		bets:   bets,
		now:    deps.Now,
		rules:  validate.PolicyFromConfig(deps.Config.Org),
		logger: deps.Logger.With("adapter", string(KindFake)),
	}
}

func (a *FakeAdapter) Kind() Kind { return KindFake }

func (*FakeAdapter) sealed() {}

// FetchSnapshot generates a snapshot. A zero seed draws a fresh one per call.
func (a *FakeAdapter) FetchSnapshot(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	now := a.now()
	seed := a.seed
	if seed == 0 {
		seed = uint64(now.UnixNano())
	}
	g := fakeGen{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		rules: a.rules,
	}
	snap := g.snapshot(now, a.bets)
	a.logger.Debug("fake snapshot generated", "seed", seed, "bets", len(snap.RoadmapBets), "items", len(snap.WorkItems))
	return snap, nil
}

type fakeGen struct {
	rng   *rand.Rand
	rules validate.Policy
}

func (g fakeGen) pick(n int) int { return g.rng.IntN(n) }

func (g fakeGen) snapshot(now time.Time, n int) domain.Snapshot {
	cycles := ShapeUpCycles(now)

	areas := make([]domain.Area, 0, len(fakeAreas))
	var teams []domain.Team
	for _, a := range fakeAreas {
		area := domain.Area{ID: a.ID, Name: a.Name}
		for _, suffix := range fakeTeamSuffixes {
			t := domain.Team{ID: a.ID + "-" + suffix, Name: a.Name + " " + strings.ToUpper(suffix[:1]) + suffix[1:]}
			area.Teams = append(area.Teams, t)
			teams = append(teams, t)
		}
		areas = append(areas, area)
	}

	stages := domain.Stages()
	bets := make([]domain.RoadmapBet, 0, n)
	var items []domain.WorkItem
	itemSeq := 0
	for i := 0; i < n; i++ {
		area := areas[g.pick(len(areas))]
		team := area.Teams[g.pick(len(area.Teams))]
		obj := fakeObjectives[g.pick(len(fakeObjectives))]
		key := fmt.Sprintf("BET-%d", i+1)
		bet := domain.RoadmapBet{
			ID:          fakeID(key),
			TicketID:    key,
			Name:        fmt.Sprintf("%s %s", fakeThemes[g.pick(len(fakeThemes))], fakeNouns[g.pick(len(fakeNouns))]),
			AreaID:      area.ID,
			ObjectiveID: &obj.ID,
			TeamID:      team.ID,
			Labels:      []string{"area:" + area.ID, "team:" + team.ID, "objective:" + obj.ID},
			Validations: []domain.ValidationItem{},
		}
		bet.Summary = fmt.Sprintf("%s work owned by %s.", bet.Name, team.Name)
		bets = append(bets, bet)

		for j, count := 0, 2+g.pick(5); j < count; j++ {
			itemSeq++
			items = append(items, g.item(itemSeq, bet, area, team, stages, cycles))
		}
	}

	people := append([]domain.Person(nil), fakePeople...)
	sort.SliceStable(people, func(i, j int) bool { return people[i].Name < people[j].Name })

	return domain.Snapshot{
		Cycles:      cycles,
		RoadmapBets: bets,
		WorkItems:   items,
		Areas:       areas,
		Objectives:  append([]domain.Objective(nil), fakeObjectives...),
		Teams:       teams,
		Assignees:   people,
		Stages:      stages,
	}
}

func (g fakeGen) item(seq int, bet domain.RoadmapBet, area domain.Area, team domain.Team, stages []domain.Stage, cycles []domain.Cycle) domain.WorkItem {
	key := fmt.Sprintf("ITEM-%d", seq)
	stage := stages[g.pick(len(stages))]

	var effort extract.Option[float64]
	if g.pick(8) > 0 {
		effort = extract.Some(fakeEffort[g.pick(len(fakeEffort))])
	}

	// Index len(cycles) leaves the item unscheduled.
	var cycle *domain.Cycle
	if ci := g.pick(len(cycles) + 1); ci < len(cycles) {
		cycle = &cycles[ci]
	}
	status := []string{domain.StatusTodo, domain.StatusInProgress, domain.StatusDone}[g.pick(3)]
	switch {
	case cycle != nil && cycle.State == domain.CycleClosed:
		status = domain.StatusDone
	case cycle != nil && cycle.State == domain.CycleFuture:
		status = domain.StatusTodo
	}

	teamIDs := []string{team.ID}
	if g.pick(4) == 0 {
		for _, t := range area.Teams {
			if t.ID != team.ID {
				teamIDs = append(teamIDs, t.ID)
				break
			}
		}
	}

	w := domain.WorkItem{
		ID:           fakeID(key),
		TicketID:     key,
		Name:         fmt.Sprintf("%s task %d (%s)", bet.Name, seq, stage.Name),
		Effort:       effort.Ptr(),
		AreaIDs:      []string{area.ID},
		TeamIDs:      teamIDs,
		Status:       status,
		Stage:        stage.ID,
		AssigneeID:   fakePeople[g.pick(len(fakePeople))].ID,
		Validations:  validate.Concat(validate.RequiredOption(effort, key, "effort", g.rules)),
		RoadmapBetID: bet.ID,
	}
	if cycle != nil {
		id := cycle.ID
		w.CycleID = &id
	}
	return w
}

// ShapeUpCycles returns the two-month windows around now: the previous one
// (closed), the current one (active) and the next two (future).
func ShapeUpCycles(now time.Time) []domain.Cycle {
	y, m, _ := now.Date()
	m -= (m - 1) % 2
	anchor := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)

	out := make([]domain.Cycle, 0, 4)
	for i := -1; i <= 2; i++ {
		start := anchor.AddDate(0, 2*i, 0)
		end := start.AddDate(0, 2, -1)
		state := domain.CycleFuture
		switch {
		case i < 0:
			state = domain.CycleClosed
		case i == 0:
			state = domain.CycleActive
		}
		out = append(out, domain.Cycle{
			ID:           "cycle-" + start.Format("2006-01"),
			Name:         "Cycle " + start.Format("Jan 2006"),
			StartDate:    start.Format(extract.DateLayout),
			EndDate:      end.Format(extract.DateLayout),
			DeliveryDate: end.Format(extract.DateLayout),
			State:        state,
		})
	}
	return out
}

func fakeID(key string) string {
	return uuid.NewSHA1(fakeNamespace, []byte(key)).String()
}
