package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AdapterFake, cfg.Adapter)
	assert.Equal(t, 30*time.Second, cfg.Tracker.Timeout)
	assert.Equal(t, []string{"sprint", "customfield_10020"}, cfg.Org.Fields.Sprint)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, 20, cfg.Server.KeepSnapshots)
}

func TestFromYAMLLayersOverDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
adapter: org
tracker:
  base_url: https://example.atlassian.net
  board_id: 42
org:
  team_areas:
    payments-core: payments
server:
  refresh_interval: 5m
`))
	require.NoError(t, err)
	assert.Equal(t, AdapterOrg, cfg.Adapter)
	assert.Equal(t, 42, cfg.Tracker.BoardID)
	assert.Equal(t, "payments", cfg.Org.TeamAreas["payments-core"])
	assert.Equal(t, 5*time.Minute, cfg.Server.RefreshInterval)
	// untouched keys keep their defaults
	assert.Equal(t, "todo", cfg.Org.StatusFallback)
	assert.Equal(t, 100, cfg.Tracker.PageSize)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown adapter":   "adapter: csv\n",
		"missing base url":  "adapter: default\ntracker:\n  board_id: 1\n",
		"missing board":     "adapter: default\ntracker:\n  base_url: https://x\n",
		"bad sprint value":  "org:\n  sprint_value: last\n",
		"bad stage default": "org:\n  defaults:\n    stage: s7\n",
		"bad severity":      "org:\n  severities:\n    effort: fatal\n",
		"negative keep":     "server:\n  keep_snapshots: -1\n",
		"webhook no url":    "server:\n  webhooks:\n    - events: [snapshot.fetched]\n",
		"not yaml":          "adapter: [\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, AdapterFake, cfg.Adapter)

	_, err = Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyc config init")

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("fake:\n  bets: 3\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Fake.Bets)
}

func TestMarshalKeepsDurations(t *testing.T) {
	out, err := Default().Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "adapter: fake")
	assert.Contains(t, string(out), "timeout: 30s")
}
