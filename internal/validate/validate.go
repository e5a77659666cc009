// Package validate turns missing or malformed derived fields into
// ValidationItem diagnostics.
package validate

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cyclescope/internal/config"
	"cyclescope/internal/domain"
	"cyclescope/internal/extract"
)

// Policy carries the organization's severity and wording per field.
type Policy struct {
	Severities      map[string]domain.Severity
	Descriptions    map[string]string
	DefaultSeverity domain.Severity
}

// PolicyFromConfig builds a Policy from the org section of the config.
func PolicyFromConfig(org config.Org) Policy {
	p := Policy{
		Severities:      make(map[string]domain.Severity, len(org.Severities)),
		Descriptions:    make(map[string]string, len(org.Descriptions)),
		DefaultSeverity: domain.SeverityWarning,
	}
	for k, v := range org.Severities {
		p.Severities[k] = domain.Severity(v)
	}
	for k, v := range org.Descriptions {
		p.Descriptions[k] = v
	}
	return p
}

func (p Policy) severity(field string) domain.Severity {
	if s, ok := p.Severities[field]; ok {
		return s
	}
	if p.DefaultSeverity == "" {
		return domain.SeverityWarning
	}
	return p.DefaultSeverity
}

func (p Policy) description(field, fallback string) string {
	if d, ok := p.Descriptions[field]; ok && d != "" {
		return d
	}
	return fallback
}

// ItemID derives a stable id from the subject and code so the same input
// always yields the same diagnostic.
func ItemID(subjectID, code string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(subjectID+"|"+code)).String()
}

func newItem(subjectID, code string, sev domain.Severity, desc string) domain.ValidationItem {
	return domain.ValidationItem{
		ID:          ItemID(subjectID, code),
		Code:        code,
		Severity:    sev,
		Description: desc,
		SubjectID:   subjectID,
	}
}

// Required reports one diagnostic when value is the zero value.
func Required[T comparable](value T, subjectID, field string, p Policy) []domain.ValidationItem {
	var zero T
	if value != zero {
		return nil
	}
	return missing(subjectID, field, p)
}

// RequiredSlice reports one diagnostic when value is empty.
func RequiredSlice[T any](value []T, subjectID, field string, p Policy) []domain.ValidationItem {
	if len(value) > 0 {
		return nil
	}
	return missing(subjectID, field, p)
}

// RequiredOption reports one diagnostic when o is absent.
func RequiredOption[T any](o extract.Option[T], subjectID, field string, p Policy) []domain.ValidationItem {
	if o.IsSome() {
		return nil
	}
	return missing(subjectID, field, p)
}

// Invalid reports a present but unusable value.
func Invalid(subjectID, field, value string, p Policy) []domain.ValidationItem {
	desc := fmt.Sprintf("%s value %q is not recognized. %s", field, value, p.description(field, ""))
	return []domain.ValidationItem{newItem(subjectID, "invalid_"+field, p.severity(field), strings.TrimSpace(desc))}
}

func missing(subjectID, field string, p Policy) []domain.ValidationItem {
	desc := p.description(field, fmt.Sprintf("%s is missing.", field))
	return []domain.ValidationItem{newItem(subjectID, "missing_"+field, p.severity(field), desc)}
}

// Concat joins diagnostic groups in order. Duplicates are kept.
func Concat(groups ...[]domain.ValidationItem) []domain.ValidationItem {
	out := []domain.ValidationItem{}
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
