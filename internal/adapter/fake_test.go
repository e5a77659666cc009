package adapter_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclescope/internal/adapter"
	"cyclescope/internal/domain"
	"cyclescope/internal/projection"
)

func TestShapeUpCycles(t *testing.T) {
	got := adapter.ShapeUpCycles(now)
	want := []domain.Cycle{
		{ID: "cycle-2024-01", Name: "Cycle Jan 2024", StartDate: "2024-01-01", EndDate: "2024-02-29", DeliveryDate: "2024-02-29", State: domain.CycleClosed},
		{ID: "cycle-2024-03", Name: "Cycle Mar 2024", StartDate: "2024-03-01", EndDate: "2024-04-30", DeliveryDate: "2024-04-30", State: domain.CycleActive},
		{ID: "cycle-2024-05", Name: "Cycle May 2024", StartDate: "2024-05-01", EndDate: "2024-06-30", DeliveryDate: "2024-06-30", State: domain.CycleFuture},
		{ID: "cycle-2024-07", Name: "Cycle Jul 2024", StartDate: "2024-07-01", EndDate: "2024-08-31", DeliveryDate: "2024-08-31", State: domain.CycleFuture},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cycles mismatch (-want +got):\n%s", diff)
	}

	jan := adapter.ShapeUpCycles(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-11-01", jan[0].StartDate)
	assert.Equal(t, "2025-01-01", jan[1].StartDate)
}

func TestFakeAdapterInvariants(t *testing.T) {
	cfg := testConfig("fake")
	cfg.Fake.Seed = 42
	cfg.Fake.Bets = 12
	snap := fetch(t, adapter.KindFake, cfg, nil)

	require.Len(t, snap.RoadmapBets, 12)
	require.Len(t, snap.Cycles, 4)
	selected, ok := projection.SelectCycle(snap.Cycles, now)
	require.True(t, ok)
	assert.Equal(t, domain.CycleActive, selected.State)

	bets := map[string]bool{}
	for _, b := range snap.RoadmapBets {
		bets[b.ID] = true
		assert.NotEmpty(t, b.AreaID)
		assert.NotEmpty(t, b.TeamID)
		require.NotNil(t, b.ObjectiveID)
	}
	cycles := map[string]bool{}
	for _, c := range snap.Cycles {
		cycles[c.ID] = true
	}
	perBet := map[string]int{}
	for _, w := range snap.WorkItems {
		assert.True(t, bets[w.RoadmapBetID], "item %s has unknown bet", w.TicketID)
		perBet[w.RoadmapBetID]++
		_, known := domain.StageOrdinal(w.Stage)
		assert.True(t, known, w.Stage)
		assert.NotEmpty(t, w.AreaIDs)
		assert.NotEmpty(t, w.AssigneeID)
		if w.CycleID != nil {
			assert.True(t, cycles[*w.CycleID])
		}
		if w.Effort == nil {
			assert.Equal(t, "missing_effort", w.Validations[0].Code)
		}
	}
	for id := range bets {
		assert.GreaterOrEqual(t, perBet[id], 2)
	}
	for _, a := range snap.Areas {
		for _, team := range a.Teams {
			assert.True(t, strings.HasPrefix(team.ID, a.ID), "team %s in area %s", team.ID, a.ID)
		}
	}
}

func TestFakeAdapterIsDeterministicForASeed(t *testing.T) {
	cfg := testConfig("fake")
	cfg.Fake.Seed = 7
	first := fetch(t, adapter.KindFake, cfg, nil)
	second := fetch(t, adapter.KindFake, cfg, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("same seed produced different snapshots (-first +second):\n%s", diff)
	}
}

func TestFakeAdapterHonorsCanceledContext(t *testing.T) {
	a, err := adapter.New(adapter.KindFake, deps(testConfig("fake"), nil))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.FetchSnapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
