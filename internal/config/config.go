package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cyclescope/internal/domain"
)

// Adapter selectors understood by the adapter factory.
const (
	AdapterDefault = "default"
	AdapterOrg     = "org"
	AdapterFake    = "fake"
)

// Sprint value shapes for the sprint custom field.
const (
	SprintValueScalar = "scalar"
	SprintValueFirst  = "first"
)

// FileName is the workspace config file.
const FileName = "cyclescope.yml"

// Config models cyclescope.yml.
type Config struct {
	Adapter string  `yaml:"adapter"`
	Tracker Tracker `yaml:"tracker"`
	Org     Org     `yaml:"org"`
	Fake    struct {
		Seed uint64 `yaml:"seed"`
		Bets int    `yaml:"bets"`
	} `yaml:"fake"`
	Server Server `yaml:"server"`
}

type Tracker struct {
	BaseURL         string        `yaml:"base_url"`
	BoardID         int           `yaml:"board_id"`
	BetsQuery       string        `yaml:"bets_query"`
	ItemsQuery      string        `yaml:"items_query"`
	ObjectivesQuery string        `yaml:"objectives_query"`
	Email           string        `yaml:"email"`
	Token           string        `yaml:"token"`
	PageSize        int           `yaml:"page_size"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Org holds the organization policy consumed by the adapters.
type Org struct {
	Name   string `yaml:"name"`
	Labels struct {
		Area      string `yaml:"area"`
		Team      string `yaml:"team"`
		Objective string `yaml:"objective"`
		Stage     string `yaml:"stage"`
	} `yaml:"labels"`
	Fields struct {
		Effort string `yaml:"effort"`
		Stage  string `yaml:"stage"`
		// Sprint lists candidate fields in lookup order.
		Sprint []string `yaml:"sprint"`
	} `yaml:"fields"`
	SprintValue    string            `yaml:"sprint_value"`
	StatusMap      map[string]string `yaml:"status_map"`
	StatusFallback string            `yaml:"status_fallback"`
	Buckets        struct {
		Done       []string `yaml:"done"`
		InProgress []string `yaml:"in_progress"`
	} `yaml:"buckets"`
	Defaults      Defaults          `yaml:"defaults"`
	Areas         []NamedRef        `yaml:"areas"`
	Teams         []NamedRef        `yaml:"teams"`
	TeamAreas     map[string]string `yaml:"team_areas"`
	AssigneeTeams map[string]string `yaml:"assignee_teams"`
	Severities    map[string]string `yaml:"severities"`
	Descriptions  map[string]string `yaml:"descriptions"`
}

// Defaults are the fallback identities used when a required field cannot be derived.
type Defaults struct {
	Assignee  string `yaml:"assignee"`
	Area      string `yaml:"area"`
	Team      string `yaml:"team"`
	Stage     string `yaml:"stage"`
	Objective string `yaml:"objective"`
}

type NamedRef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type Server struct {
	Addr            string          `yaml:"addr"`
	BasePath        string          `yaml:"base_path"`
	RefreshInterval time.Duration   `yaml:"refresh_interval"`
	KeepSnapshots   int             `yaml:"keep_snapshots"`
	Webhooks        []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one event subscriber. An empty Events list receives every event.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cyc config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Adapter {
	case AdapterDefault, AdapterOrg, AdapterFake:
	default:
		return fmt.Errorf("config.adapter must be one of default, org, fake (got %q)", c.Adapter)
	}
	if c.Adapter != AdapterFake {
		if strings.TrimSpace(c.Tracker.BaseURL) == "" {
			return fmt.Errorf("config.tracker.base_url is required for adapter %s", c.Adapter)
		}
		if c.Tracker.BoardID <= 0 {
			return fmt.Errorf("config.tracker.board_id is required for adapter %s", c.Adapter)
		}
		if strings.TrimSpace(c.Tracker.BetsQuery) == "" || strings.TrimSpace(c.Tracker.ItemsQuery) == "" {
			return fmt.Errorf("config.tracker.bets_query and items_query are required")
		}
	}
	if c.Tracker.PageSize < 0 {
		return fmt.Errorf("config.tracker.page_size must not be negative")
	}
	d := c.Org.Defaults
	for field, v := range map[string]string{
		"assignee":  d.Assignee,
		"area":      d.Area,
		"team":      d.Team,
		"stage":     d.Stage,
		"objective": d.Objective,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("config.org.defaults.%s is required", field)
		}
	}
	if _, ok := domain.StageOrdinal(d.Stage); !ok {
		return fmt.Errorf("config.org.defaults.stage %q is not a known stage", d.Stage)
	}
	switch c.Org.SprintValue {
	case "", SprintValueScalar, SprintValueFirst:
	default:
		return fmt.Errorf("config.org.sprint_value must be scalar or first")
	}
	if c.Org.StatusFallback == "" {
		return fmt.Errorf("config.org.status_fallback is required")
	}
	if len(c.Org.Buckets.Done) == 0 {
		return fmt.Errorf("config.org.buckets.done must list at least one status")
	}
	for field, sev := range c.Org.Severities {
		if sev != string(domain.SeverityWarning) && sev != string(domain.SeverityError) {
			return fmt.Errorf("config.org.severities.%s must be warning or error", field)
		}
	}
	for _, a := range c.Org.Areas {
		if a.ID == "" {
			return fmt.Errorf("config.org.areas contains an entry without id")
		}
	}
	if c.Server.KeepSnapshots < 0 {
		return fmt.Errorf("config.server.keep_snapshots must not be negative")
	}
	for i, hook := range c.Server.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.server.webhooks[%d].url is required", i)
		}
	}
	for team, area := range c.Org.TeamAreas {
		if team == "" || area == "" {
			return fmt.Errorf("config.org.team_areas has an empty key or value")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Marshal renders the config back to YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `adapter: fake

tracker:
  base_url: ""
  board_id: 0
  bets_query: "issuetype = Epic AND statusCategory != Done"
  items_query: "issuetype in (Story, Task, Bug) AND parent is not EMPTY"
  objectives_query: ""
  page_size: 100
  timeout: 30s

org:
  name: default
  labels:
    area: area
    team: team
    objective: objective
    stage: stage
  fields:
    effort: customfield_10016
    stage: ""
    sprint: [sprint, customfield_10020]
  sprint_value: first
  status_map:
    "to do": todo
    "backlog": todo
    "selected for development": todo
    "in progress": inprogress
    "in review": inprogress
    "blocked": inprogress
    "done": done
    "closed": done
  status_fallback: todo
  buckets:
    done: [done]
    in_progress: [inprogress]
  defaults:
    assignee: nobody
    area: general
    team: general
    stage: s0
    objective: general
  severities:
    effort: warning
    assignee: warning
    area: warning
    team: warning
    stage: warning
    objective: warning
    parent: error
  descriptions:
    effort: "No effort estimate; it counts as 0 in rollups."
    assignee: "No assignee; the default assignee was used."
    area: "No area could be derived; the default area was used."
    team: "No team could be derived; the default team was used."
    stage: "No stage found in the tracker or the issue name; the default stage was used."
    objective: "No objective linked to this bet."
    parent: "Work item has no known roadmap bet; it was grouped under Unplanned."

fake:
  seed: 0
  bets: 8

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  refresh_interval: 0s
  keep_snapshots: 20
`
