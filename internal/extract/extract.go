// Package extract pulls typed values out of raw tracker issues. Every
// primitive reports absence through Option instead of failing.
package extract

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cyclescope/internal/config"
	"cyclescope/internal/domain"
	"cyclescope/internal/tracker"
)

// DateLayout is the calendar-date format used by every domain date.
const DateLayout = "2006-01-02"

// StandardSprintField names the tracker's own sprint field in candidate lists.
const StandardSprintField = "sprint"

// LabelsWithPrefix returns the suffix of every label that starts with prefix + ":".
func LabelsWithPrefix(labels []string, prefix string) []string {
	if prefix == "" {
		return nil
	}
	p := prefix + ":"
	var out []string
	for _, l := range labels {
		if strings.HasPrefix(l, p) {
			out = append(out, strings.TrimPrefix(l, p))
		}
	}
	return out
}

// CustomField returns the decoded value of a custom field when it holds a T.
func CustomField[T any](issue tracker.Issue, key string) Option[T] {
	if key == "" || issue.Fields.Custom == nil {
		return None[T]()
	}
	raw, ok := issue.Fields.Custom[key]
	if !ok || raw == nil {
		return None[T]()
	}
	v, ok := raw.(T)
	if !ok {
		return None[T]()
	}
	return Some(v)
}

// CustomString reads a text or single-select custom field.
func CustomString(issue tracker.Issue, key string) Option[string] {
	return First(
		func() Option[string] {
			s, ok := CustomField[string](issue, key).Get()
			if !ok {
				return None[string]()
			}
			return NonBlank(strings.TrimSpace(s))
		},
		func() Option[string] {
			m, ok := CustomField[map[string]any](issue, key).Get()
			if !ok {
				return None[string]()
			}
			for _, k := range []string{"value", "name"} {
				if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
					return Some(strings.TrimSpace(s))
				}
			}
			return None[string]()
		},
	)
}

// CustomNumber reads a numeric custom field. Numeric strings are accepted;
// NaN and infinities are treated as absent.
func CustomNumber(issue tracker.Issue, key string) Option[float64] {
	if key == "" || issue.Fields.Custom == nil {
		return None[float64]()
	}
	var f float64
	switch v := issue.Fields.Custom[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return None[float64]()
		}
		f = parsed
	default:
		return None[float64]()
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return None[float64]()
	}
	return Some(f)
}

// Parent returns the parent issue key.
func Parent(issue tracker.Issue) Option[string] {
	if issue.Fields.Parent == nil {
		return None[string]()
	}
	return NonBlank(issue.Fields.Parent.Key)
}

// Assignee returns the issue's assignee.
func Assignee(issue tracker.Issue) Option[domain.Person] {
	u := issue.Fields.Assignee
	if u == nil || u.AccountID == "" {
		return None[domain.Person]()
	}
	name := u.DisplayName
	if name == "" {
		name = u.AccountID
	}
	return Some(domain.Person{ID: u.AccountID, Name: name})
}

// AllAssignees returns the distinct assignees of issues sorted by display name.
func AllAssignees(issues []tracker.Issue) []domain.Person {
	seen := make(map[string]bool)
	var out []domain.Person
	for _, is := range issues {
		p, ok := Assignee(is).Get()
		if !ok || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SprintID reads the sprint id from the standard sprint field, then from
// fieldKey. pick is config.SprintValueScalar or config.SprintValueFirst.
func SprintID(issue tracker.Issue, fieldKey, pick string) Option[string] {
	return SprintIDFrom(issue, []string{StandardSprintField, fieldKey}, pick)
}

// SprintIDFrom tries each candidate field in order.
func SprintIDFrom(issue tracker.Issue, candidates []string, pick string) Option[string] {
	tiers := make([]func() Option[string], 0, len(candidates))
	for _, key := range candidates {
		key := key
		tiers = append(tiers, func() Option[string] { return sprintFromField(issue, key, pick) })
	}
	return First(tiers...)
}

func sprintFromField(issue tracker.Issue, key, pick string) Option[string] {
	if key == "" {
		return None[string]()
	}
	if key == StandardSprintField {
		if s := issue.Fields.Sprint; s != nil && s.ID != 0 {
			return Some(strconv.Itoa(s.ID))
		}
		return None[string]()
	}
	raw, ok := issue.Fields.Custom[key]
	if !ok || raw == nil {
		return None[string]()
	}
	if arr, isArr := raw.([]any); isArr {
		if pick != config.SprintValueFirst || len(arr) == 0 {
			return None[string]()
		}
		return sprintScalar(arr[0])
	}
	return sprintScalar(raw)
}

var legacySprintID = regexp.MustCompile(`\[id=(\d+)[,\]]`)

func sprintScalar(v any) Option[string] {
	switch t := v.(type) {
	case float64:
		return Some(strconv.FormatInt(int64(t), 10))
	case string:
		if m := legacySprintID.FindStringSubmatch(t); m != nil {
			return Some(m[1])
		}
		return NonBlank(strings.TrimSpace(t))
	case map[string]any:
		return sprintScalar(t["id"])
	}
	return None[string]()
}

// MapStatus maps a tracker status name through table (case-insensitive).
// Unmapped statuses resolve to fallback.
func MapStatus(status string, table map[string]string, fallback string) string {
	key := strings.ToLower(strings.TrimSpace(status))
	if key == "" {
		return fallback
	}
	if v, ok := table[key]; ok {
		return v
	}
	for k, v := range table {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return fallback
}

// SprintToCycle converts a tracker sprint into a Cycle with calendar dates.
func SprintToCycle(s tracker.Sprint) domain.Cycle {
	state := domain.CycleFuture
	switch strings.ToLower(s.State) {
	case "active":
		state = domain.CycleActive
	case "closed":
		state = domain.CycleClosed
	}
	end := NormalizeDate(s.EndDate)
	delivery := NormalizeDate(s.CompleteDate)
	if delivery == "" {
		delivery = end
	}
	return domain.Cycle{
		ID:           strconv.Itoa(s.ID),
		Name:         s.Name,
		StartDate:    NormalizeDate(s.StartDate),
		EndDate:      end,
		DeliveryDate: delivery,
		State:        state,
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	DateLayout,
}

// NormalizeDate strips time-of-day from a tracker timestamp. The calendar
// date is taken as written, without converting time zones.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout)
		}
	}
	if len(s) >= len(DateLayout) {
		if t, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return t.Format(DateLayout)
		}
	}
	return ""
}

// StageFromName reads the text inside the last closed parenthesis pair of
// name, lower-cased. An unclosed trailing "(" is skipped.
func StageFromName(name string) Option[string] {
	end := len(name)
	for end > 0 {
		openIdx := strings.LastIndex(name[:end], "(")
		if openIdx < 0 {
			return None[string]()
		}
		if closeIdx := strings.Index(name[openIdx:], ")"); closeIdx >= 0 {
			return NonBlank(strings.ToLower(strings.TrimSpace(name[openIdx+1 : openIdx+closeIdx])))
		}
		end = openIdx
	}
	return None[string]()
}
