package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclescope/internal/config"
	"cyclescope/internal/domain"
	"cyclescope/internal/extract"
	"cyclescope/internal/validate"
)

func testPolicy() validate.Policy {
	var org config.Org
	org.Severities = map[string]string{"parent": "error"}
	org.Descriptions = map[string]string{"area": "No area; default used."}
	return validate.PolicyFromConfig(org)
}

func TestRequiredPresentYieldsNothing(t *testing.T) {
	p := testPolicy()
	assert.Empty(t, validate.Required("x", "X-1", "area", p))
	assert.Empty(t, validate.RequiredSlice([]string{"a"}, "X-1", "area", p))
	assert.Empty(t, validate.RequiredOption(extract.Some(1), "X-1", "area", p))
}

func TestRequiredMissing(t *testing.T) {
	p := testPolicy()
	got := validate.Required("", "X-1", "area", p)
	require.Len(t, got, 1)
	assert.Equal(t, "missing_area", got[0].Code)
	assert.Equal(t, domain.SeverityWarning, got[0].Severity)
	assert.Equal(t, "No area; default used.", got[0].Description)
	assert.Equal(t, "X-1", got[0].SubjectID)

	parent := validate.RequiredOption(extract.None[string](), "X-1", "parent", p)
	require.Len(t, parent, 1)
	assert.Equal(t, domain.SeverityError, parent[0].Severity)
	assert.Equal(t, "parent is missing.", parent[0].Description)

	var effort *float64
	assert.Len(t, validate.Required(effort, "X-1", "effort", p), 1)
}

func TestDiagnosticsAreDeterministic(t *testing.T) {
	p := testPolicy()
	a := validate.Required("", "X-1", "team", p)
	b := validate.Required("", "X-1", "team", p)
	assert.Equal(t, a, b)
	other := validate.Required("", "X-2", "team", p)
	assert.NotEqual(t, a[0].ID, other[0].ID)
}

func TestConcatKeepsOrderAndDuplicates(t *testing.T) {
	p := testPolicy()
	got := validate.Concat(
		validate.Required("", "X-1", "team", p),
		validate.Required("ok", "X-1", "area", p),
		validate.Required("", "X-1", "team", p),
		validate.Invalid("X-1", "stage", "s9", p),
	)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"missing_team", "missing_team", "invalid_stage"}, []string{got[0].Code, got[1].Code, got[2].Code})
	assert.Contains(t, got[2].Description, `"s9"`)
	assert.NotNil(t, validate.Concat())
}
