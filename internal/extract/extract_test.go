package extract_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclescope/internal/config"
	"cyclescope/internal/domain"
	"cyclescope/internal/extract"
	"cyclescope/internal/tracker"
)

func issueWith(custom map[string]any) tracker.Issue {
	return tracker.Issue{Key: "X-1", Fields: tracker.Fields{Custom: custom}}
}

func TestLabelsWithPrefix(t *testing.T) {
	labels := []string{"area:payments", "team:core", "area:growth", "areaX", "area:"}
	assert.Equal(t, []string{"payments", "growth", ""}, extract.LabelsWithPrefix(labels, "area"))
	assert.Nil(t, extract.LabelsWithPrefix(labels, "stage"))
	assert.Nil(t, extract.LabelsWithPrefix(labels, ""))
}

func TestCustomField(t *testing.T) {
	is := issueWith(map[string]any{"points": float64(3), "empty": nil, "text": "x"})

	v, ok := extract.CustomField[float64](is, "points").Get()
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
	assert.False(t, extract.CustomField[float64](is, "empty").IsSome())
	assert.False(t, extract.CustomField[float64](is, "missing").IsSome())
	assert.False(t, extract.CustomField[float64](is, "text").IsSome())
}

func TestCustomStringReadsSelectOption(t *testing.T) {
	is := issueWith(map[string]any{
		"plain":  " s2 ",
		"select": map[string]any{"value": "S3+"},
		"blank":  "",
	})
	assert.Equal(t, "s2", extract.CustomString(is, "plain").OrDefault(""))
	assert.Equal(t, "S3+", extract.CustomString(is, "select").OrDefault(""))
	assert.False(t, extract.CustomString(is, "blank").IsSome())
}

func TestCustomNumber(t *testing.T) {
	is := issueWith(map[string]any{
		"n":   float64(2.5),
		"s":   "4",
		"bad": "lots",
		"nan": math.NaN(),
		"arr": []any{1.0},
	})
	assert.Equal(t, 2.5, extract.CustomNumber(is, "n").OrDefault(0))
	assert.Equal(t, 4.0, extract.CustomNumber(is, "s").OrDefault(0))
	assert.False(t, extract.CustomNumber(is, "bad").IsSome())
	assert.False(t, extract.CustomNumber(is, "nan").IsSome())
	assert.False(t, extract.CustomNumber(is, "arr").IsSome())
}

func TestParentAndAssignee(t *testing.T) {
	is := tracker.Issue{Key: "X-2", Fields: tracker.Fields{
		Parent:   &tracker.Parent{Key: "X-1"},
		Assignee: &tracker.User{AccountID: "u1", DisplayName: "Ada"},
	}}
	assert.Equal(t, "X-1", extract.Parent(is).OrDefault(""))
	assert.Equal(t, domain.Person{ID: "u1", Name: "Ada"}, extract.Assignee(is).OrDefault(domain.Person{}))

	bare := tracker.Issue{Key: "X-3"}
	assert.False(t, extract.Parent(bare).IsSome())
	assert.False(t, extract.Assignee(bare).IsSome())
}

func TestAllAssigneesDedupesAndSortsByName(t *testing.T) {
	mk := func(id, name string) tracker.Issue {
		return tracker.Issue{Fields: tracker.Fields{Assignee: &tracker.User{AccountID: id, DisplayName: name}}}
	}
	got := extract.AllAssignees([]tracker.Issue{mk("u2", "Zoe"), mk("u1", "Ada"), mk("u2", "Zoe"), {}, mk("u3", "Bob")})
	assert.Equal(t, []domain.Person{{ID: "u1", Name: "Ada"}, {ID: "u3", Name: "Bob"}, {ID: "u2", Name: "Zoe"}}, got)
}

func TestSprintID(t *testing.T) {
	std := tracker.Issue{Fields: tracker.Fields{
		Sprint: &tracker.Sprint{ID: 9},
		Custom: map[string]any{"cf": []any{map[string]any{"id": float64(12)}}},
	}}
	assert.Equal(t, "9", extract.SprintID(std, "cf", config.SprintValueFirst).OrDefault(""))

	arr := issueWith(map[string]any{"cf": []any{map[string]any{"id": float64(12)}, map[string]any{"id": float64(13)}}})
	assert.Equal(t, "12", extract.SprintID(arr, "cf", config.SprintValueFirst).OrDefault(""))
	assert.False(t, extract.SprintID(arr, "cf", config.SprintValueScalar).IsSome())

	scalar := issueWith(map[string]any{"cf": float64(44)})
	assert.Equal(t, "44", extract.SprintID(scalar, "cf", config.SprintValueScalar).OrDefault(""))

	legacy := issueWith(map[string]any{"cf": []any{"com.atlassian.greenhopper.service.sprint.Sprint@1[id=77,rapidViewId=1]"}})
	assert.Equal(t, "77", extract.SprintID(legacy, "cf", config.SprintValueFirst).OrDefault(""))

	ordered := issueWith(map[string]any{"second": float64(5)})
	assert.Equal(t, "5", extract.SprintIDFrom(ordered, []string{"sprint", "first", "second"}, config.SprintValueScalar).OrDefault(""))
	assert.False(t, extract.SprintID(issueWith(nil), "cf", config.SprintValueFirst).IsSome())
}

func TestMapStatus(t *testing.T) {
	table := map[string]string{"in progress": "inprogress", "done": "done"}
	assert.Equal(t, "inprogress", extract.MapStatus("In Progress", table, "todo"))
	assert.Equal(t, "done", extract.MapStatus("DONE", table, "todo"))
	assert.Equal(t, "todo", extract.MapStatus("Weird", table, "todo"))
	assert.Equal(t, "todo", extract.MapStatus("", table, "todo"))
}

func TestSprintToCycle(t *testing.T) {
	c := extract.SprintToCycle(tracker.Sprint{
		ID:        12,
		Name:      "Cycle 12",
		State:     "ACTIVE",
		StartDate: "2024-03-01T09:30:00.000+0100",
		EndDate:   "2024-04-30T23:59:59Z",
	})
	assert.Equal(t, domain.Cycle{
		ID:           "12",
		Name:         "Cycle 12",
		StartDate:    "2024-03-01",
		EndDate:      "2024-04-30",
		DeliveryDate: "2024-04-30",
		State:        domain.CycleActive,
	}, c)
	assert.Equal(t, domain.CycleFuture, extract.SprintToCycle(tracker.Sprint{State: "future"}).State)
	assert.Equal(t, "", extract.NormalizeDate("not a date"))
}

func TestStageFromName(t *testing.T) {
	cases := []struct{ name, want string }{
		{"Checkout rewrite (S2)", "s2"},
		{"Foo (draft) bar (S3+)", "s3+"},
		{"Nested (a (S1))", "s1"},
		{"Trailing text (S0) after", "s0"},
		{"No parens", ""},
		{"Unclosed (S1", ""},
		{"Task (s1) (draft", "s1"},
		{"Empty ()", ""},
		{"Backwards ) (", ""},
	}
	for _, tc := range cases {
		got, ok := extract.StageFromName(tc.name).Get()
		if tc.want == "" {
			assert.False(t, ok, tc.name)
			continue
		}
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestFirstShortCircuits(t *testing.T) {
	calls := 0
	got := extract.First(
		func() extract.Option[string] { calls++; return extract.None[string]() },
		func() extract.Option[string] { calls++; return extract.Some("tier2") },
		func() extract.Option[string] { calls++; return extract.Some("tier3") },
	)
	assert.Equal(t, "tier2", got.OrDefault(""))
	assert.Equal(t, 2, calls)
}

func TestOrAndOrElse(t *testing.T) {
	assert.Equal(t, "a", extract.Some("a").Or(extract.Some("b")).OrDefault(""))
	assert.Equal(t, "b", extract.None[string]().Or(extract.Some("b")).OrDefault(""))

	called := false
	got := extract.Some("a").OrElse(func() extract.Option[string] {
		called = true
		return extract.Some("b")
	})
	assert.Equal(t, "a", got.OrDefault(""))
	assert.False(t, called)
}
