package adapter

import (
	"context"

	"cyclescope/internal/config"
	"cyclescope/internal/domain"
)

// DefaultAdapter reads a Jira board whose issues carry areas, teams and
// objectives as prefixed labels and the stage in a custom field.
type DefaultAdapter struct {
	in ingester
}

func newDefault(deps Deps) *DefaultAdapter {
	pick := deps.Config.Org.SprintValue
	if pick == "" {
		pick = config.SprintValueScalar
	}
	return &DefaultAdapter{in: newIngester(KindDefault, deps, policy{
		stageField: true,
		sprintPick: pick,
	})}
}

func (a *DefaultAdapter) Kind() Kind { return KindDefault }

func (a *DefaultAdapter) FetchSnapshot(ctx context.Context) (domain.Snapshot, error) {
	return a.in.run(ctx)
}

func (*DefaultAdapter) sealed() {}

// OrgAdapter reads a Jira instance where objectives are initiative issues
// parenting the bets, areas follow from team labels, the stage is written in
// the issue name and the sprint field holds an array.
type OrgAdapter struct {
	in ingester
}

func newOrg(deps Deps) *OrgAdapter {
	return &OrgAdapter{in: newIngester(KindOrg, deps, policy{
		parentObjectives: true,
		areasFromTeams:   true,
		sprintPick:       config.SprintValueFirst,
	})}
}

func (a *OrgAdapter) Kind() Kind { return KindOrg }

func (a *OrgAdapter) FetchSnapshot(ctx context.Context) (domain.Snapshot, error) {
	return a.in.run(ctx)
}

func (*OrgAdapter) sealed() {}
