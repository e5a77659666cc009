package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagesOrdered(t *testing.T) {
	stages := Stages()
	require.Len(t, stages, 5)
	for i, s := range stages {
		assert.Equal(t, i, s.Ordinal)
		ord, ok := StageOrdinal(s.ID)
		require.True(t, ok, s.ID)
		assert.Equal(t, i, ord)
	}
	assert.Equal(t, "S3+", stages[4].Name)

	_, ok := StageOrdinal("s9")
	assert.False(t, ok)
}

func TestCountDiagnostics(t *testing.T) {
	s := Snapshot{
		RoadmapBets: []RoadmapBet{{ID: "b1", Validations: []ValidationItem{{Code: "objective", Severity: SeverityWarning}}}},
		WorkItems: []WorkItem{
			{ID: "w1", Validations: []ValidationItem{{Code: "effort", Severity: SeverityWarning}, {Code: "parent", Severity: SeverityError}}},
			{ID: "w2"},
		},
	}
	diags := s.Diagnostics()
	require.Len(t, diags, 3)
	assert.Equal(t, "objective", diags[0].Code)
	assert.Equal(t, ValidationCount{Warnings: 2, Errors: 1}, s.CountDiagnostics())
}

func TestWithAreaCopies(t *testing.T) {
	c := FilterCriteria{Area: "a", StageIDs: []string{"s1"}}
	d := c.WithArea("b")
	assert.Equal(t, "a", c.Area)
	assert.Equal(t, "b", d.Area)
	assert.Equal(t, c.StageIDs, d.StageIDs)
}
