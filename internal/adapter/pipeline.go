package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"cyclescope/internal/config"
	"cyclescope/internal/domain"
	"cyclescope/internal/extract"
	"cyclescope/internal/tracker"
	"cyclescope/internal/validate"
)

// source is the raw tracker data of one run.
type source struct {
	sprints    []tracker.Sprint
	bets       []tracker.Issue
	items      []tracker.Issue
	objectives []tracker.Issue
}

// policy is what differs between the tracker-backed variants.
type policy struct {
	// fetch the objectives query and resolve bet parents against it
	parentObjectives bool
	// derive areas from team labels when an issue has no area label
	areasFromTeams bool
	// read the stage custom field before labels and the issue name
	stageField bool
	sprintPick string
}

// ingester runs fetch and transform for the default and org adapters.
type ingester struct {
	kind   Kind
	client tracker.Client
	cfg    config.Tracker
	org    config.Org
	policy policy
	rules  validate.Policy
	logger *slog.Logger
}

func newIngester(kind Kind, deps Deps, p policy) ingester {
	return ingester{
		kind:   kind,
		client: deps.Client,
		cfg:    deps.Config.Tracker,
		org:    deps.Config.Org,
		policy: p,
		rules:  validate.PolicyFromConfig(deps.Config.Org),
		logger: deps.Logger.With("adapter", string(kind)),
	}
}

func (in ingester) run(ctx context.Context) (domain.Snapshot, error) {
	src, err := in.fetch(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	b := newBuilder(in.org, in.policy, in.rules, in.logger)
	snap := b.build(src)
	counts := snap.CountDiagnostics()
	in.logger.Info("snapshot built",
		"cycles", len(snap.Cycles),
		"bets", len(snap.RoadmapBets),
		"items", len(snap.WorkItems),
		"warnings", counts.Warnings,
		"errors", counts.Errors,
	)
	return snap, nil
}

func (in ingester) searchFields() []string {
	out := tracker.StandardFields()
	extra := append([]string{in.org.Fields.Effort, in.org.Fields.Stage}, sprintFields(in.org)...)
	for _, k := range extra {
		if k != "" && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// fetch issues every tracker request concurrently. The first failure cancels
// the others and fails the run.
func (in ingester) fetch(ctx context.Context) (source, error) {
	var src source
	fields := in.searchFields()
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		sprints, err := in.client.GetSprints(ctx, in.cfg.BoardID)
		if err != nil {
			return fmt.Errorf("fetch sprints: %w", err)
		}
		src.sprints = sprints
		return nil
	})
	p.Go(func(ctx context.Context) error {
		issues, err := in.client.SearchIssues(ctx, in.cfg.BetsQuery, fields)
		if err != nil {
			return fmt.Errorf("fetch roadmap bets: %w", err)
		}
		src.bets = issues
		return nil
	})
	p.Go(func(ctx context.Context) error {
		issues, err := in.client.SearchIssues(ctx, in.cfg.ItemsQuery, fields)
		if err != nil {
			return fmt.Errorf("fetch work items: %w", err)
		}
		src.items = issues
		return nil
	})
	if in.policy.parentObjectives && strings.TrimSpace(in.cfg.ObjectivesQuery) != "" {
		p.Go(func(ctx context.Context) error {
			issues, err := in.client.SearchIssues(ctx, in.cfg.ObjectivesQuery, tracker.StandardFields())
			if err != nil {
				return fmt.Errorf("fetch objectives: %w", err)
			}
			src.objectives = issues
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return source{}, fmt.Errorf("%s adapter: %w", in.kind, err)
	}
	return src, nil
}

// registry keeps ids in first-seen order with display names.
type registry struct {
	ids   []string
	names map[string]string
}

func newRegistry() *registry {
	return &registry{names: make(map[string]string)}
}

func (r *registry) add(id, name string) {
	if id == "" {
		return
	}
	if cur, ok := r.names[id]; ok {
		if cur == id && name != "" {
			r.names[id] = name
		}
		return
	}
	if name == "" {
		name = id
	}
	r.ids = append(r.ids, id)
	r.names[id] = name
}

// builder turns one source into a snapshot. It is used once and discarded.
type builder struct {
	org    config.Org
	policy policy
	rules  validate.Policy
	logger *slog.Logger

	areaNames map[string]string
	teamNames map[string]string
	// known areas for team prefix matching, configured areas first
	knownAreas []string

	areas      *registry
	teams      *registry
	objectives *registry
}

func newBuilder(org config.Org, p policy, rules validate.Policy, logger *slog.Logger) *builder {
	b := &builder{
		org:        org,
		policy:     p,
		rules:      rules,
		logger:     logger,
		areaNames:  make(map[string]string),
		teamNames:  make(map[string]string),
		areas:      newRegistry(),
		teams:      newRegistry(),
		objectives: newRegistry(),
	}
	for _, a := range org.Areas {
		b.areaNames[a.ID] = a.Name
		b.knownAreas = append(b.knownAreas, a.ID)
	}
	for _, t := range org.Teams {
		b.teamNames[t.ID] = t.Name
	}
	return b
}

func (b *builder) build(src source) domain.Snapshot {
	cycles := make([]domain.Cycle, 0, len(src.sprints))
	for _, s := range src.sprints {
		cycles = append(cycles, extract.SprintToCycle(s))
	}

	b.learnAreas(src.bets)
	b.learnAreas(src.items)

	objectiveIssues := make(map[string]bool, len(src.objectives))
	for _, o := range src.objectives {
		b.objectives.add(o.Key, o.Fields.Summary)
		objectiveIssues[o.Key] = true
	}

	bets := make([]domain.RoadmapBet, 0, len(src.bets))
	betIndex := make(map[string]int, len(src.bets))
	betLabels := make(map[string][]string, len(src.bets))
	for _, is := range src.bets {
		bet := b.bet(is, objectiveIssues)
		betIndex[is.Key] = len(bets)
		betLabels[is.Key] = is.Fields.Labels
		bets = append(bets, bet)
	}

	items := make([]domain.WorkItem, 0, len(src.items))
	unplanned := -1
	defaultedAssignee := false
	for _, is := range src.items {
		parentKey, hasParent := extract.Parent(is).Get()
		idx, known := betIndex[parentKey]
		var parentDiag []domain.ValidationItem
		switch {
		case !hasParent:
			parentDiag = validate.RequiredOption(extract.None[string](), is.Key, "parent", b.rules)
		case !known:
			parentDiag = validate.Invalid(is.Key, "parent", parentKey, b.rules)
		}
		if parentDiag != nil {
			if unplanned < 0 {
				unplanned = len(bets)
				bets = append(bets, b.unplannedBet())
			}
			idx = unplanned
			b.logger.Warn("work item has no known roadmap bet", "subject", is.Key, "parent", parentKey)
		}
		w, usedDefaultAssignee := b.item(is, betLabels[parentKey], parentDiag)
		w.RoadmapBetID = bets[idx].ID
		defaultedAssignee = defaultedAssignee || usedDefaultAssignee
		items = append(items, w)
	}

	b.resolveObjectives(bets)

	for _, bet := range bets {
		b.areas.add(bet.AreaID, b.areaNames[bet.AreaID])
		b.teams.add(bet.TeamID, b.teamNames[bet.TeamID])
	}
	for _, w := range items {
		for _, id := range w.AreaIDs {
			b.areas.add(id, b.areaNames[id])
		}
		for _, id := range w.TeamIDs {
			b.teams.add(id, b.teamNames[id])
		}
	}

	all := make([]tracker.Issue, 0, len(src.bets)+len(src.items))
	all = append(all, src.bets...)
	all = append(all, src.items...)
	assignees := extract.AllAssignees(all)
	if defaultedAssignee && !slices.ContainsFunc(assignees, func(p domain.Person) bool { return p.ID == b.org.Defaults.Assignee }) {
		fallback := domain.Person{ID: b.org.Defaults.Assignee, Name: b.org.Defaults.Assignee}
		i, _ := slices.BinarySearchFunc(assignees, fallback, comparePeople)
		assignees = slices.Insert(assignees, i, fallback)
	}

	return domain.Snapshot{
		Cycles:      cycles,
		RoadmapBets: bets,
		WorkItems:   items,
		Areas:       b.assembleAreas(),
		Objectives:  b.objectiveList(),
		Teams:       b.teamList(),
		Assignees:   assignees,
		Stages:      domain.Stages(),
	}
}

// learnAreas records every area named by a label so teams can be prefix
// matched against them.
func (b *builder) learnAreas(issues []tracker.Issue) {
	for _, is := range issues {
		for _, a := range extract.LabelsWithPrefix(is.Fields.Labels, b.org.Labels.Area) {
			if a != "" && !slices.Contains(b.knownAreas, a) {
				b.knownAreas = append(b.knownAreas, a)
			}
		}
	}
}

func (b *builder) bet(is tracker.Issue, objectiveIssues map[string]bool) domain.RoadmapBet {
	areas, areaDiag := fallback(b, b.areasFor(is, nil), is.Key, "area", []string{b.org.Defaults.Area})
	teams, teamDiag := fallback(b, b.teamsFor(is, nil), is.Key, "team", []string{b.org.Defaults.Team})

	objective := extract.First(
		func() extract.Option[string] {
			if !b.policy.parentObjectives {
				return extract.None[string]()
			}
			key, ok := extract.Parent(is).Get()
			if !ok || !objectiveIssues[key] {
				return extract.None[string]()
			}
			return extract.Some(key)
		},
		func() extract.Option[string] {
			return firstNonBlank(extract.LabelsWithPrefix(is.Fields.Labels, b.org.Labels.Objective))
		},
	)
	if id, ok := objective.Get(); ok {
		b.objectives.add(id, "")
	}

	labels := is.Fields.Labels
	if labels == nil {
		labels = []string{}
	}
	return domain.RoadmapBet{
		ID:          issueID(is),
		TicketID:    is.Key,
		Name:        is.Fields.Summary,
		Summary:     is.Fields.Description,
		AreaID:      areas[0],
		ObjectiveID: objective.Ptr(),
		TeamID:      teams[0],
		Labels:      labels,
		Validations: validate.Concat(areaDiag, teamDiag),
	}
}

func (b *builder) unplannedBet() domain.RoadmapBet {
	return domain.RoadmapBet{
		ID:          domain.UnplannedBetID,
		Name:        "Unplanned",
		AreaID:      b.org.Defaults.Area,
		TeamID:      b.org.Defaults.Team,
		Labels:      []string{},
		Validations: []domain.ValidationItem{},
	}
}

func (b *builder) item(is tracker.Issue, parentLabels []string, parentDiag []domain.ValidationItem) (domain.WorkItem, bool) {
	areas, areaDiag := fallback(b, b.areasFor(is, parentLabels), is.Key, "area", []string{b.org.Defaults.Area})
	teams, teamDiag := fallback(b, b.teamsFor(is, parentLabels), is.Key, "team", []string{b.org.Defaults.Team})

	effort := extract.CustomNumber(is, b.org.Fields.Effort)
	effortDiag := validate.RequiredOption(effort, is.Key, "effort", b.rules)

	stage, stageDiag := b.stageFor(is)

	assignee := extract.Map(extract.Assignee(is), func(p domain.Person) string { return p.ID })
	assigneeID, assigneeDiag := fallback(b, assignee, is.Key, "assignee", b.org.Defaults.Assignee)

	status := ""
	if is.Fields.Status != nil {
		status = is.Fields.Status.Name
	}
	cycle := extract.SprintIDFrom(is, sprintFields(b.org), b.policy.sprintPick)

	return domain.WorkItem{
		ID:          issueID(is),
		TicketID:    is.Key,
		Name:        is.Fields.Summary,
		Effort:      effort.Ptr(),
		AreaIDs:     areas,
		TeamIDs:     teams,
		Status:      extract.MapStatus(status, b.org.StatusMap, b.org.StatusFallback),
		Stage:       stage,
		AssigneeID:  assigneeID,
		Validations: validate.Concat(parentDiag, effortDiag, areaDiag, teamDiag, stageDiag, assigneeDiag),
		CycleID:     cycle.Ptr(),
	}, !assignee.IsSome()
}

func sprintFields(org config.Org) []string {
	if len(org.Fields.Sprint) == 0 {
		return []string{extract.StandardSprintField}
	}
	return org.Fields.Sprint
}

// areasFor runs the area tiers: the issue's labels, then the assignee's team.
// The parent's labels are consulted only when both come up empty.
func (b *builder) areasFor(is tracker.Issue, parentLabels []string) extract.Option[[]string] {
	return extract.First(
		func() extract.Option[[]string] { return b.labelAreas(is.Fields.Labels) },
		func() extract.Option[[]string] {
			team, ok := b.assigneeTeam(is).Get()
			if !ok {
				return extract.None[[]string]()
			}
			return extract.Map(b.associate(team, b.knownAreas), func(a string) []string { return []string{a} })
		},
		func() extract.Option[[]string] { return b.labelAreas(parentLabels) },
	)
}

func (b *builder) labelAreas(labels []string) extract.Option[[]string] {
	areas := distinct(extract.LabelsWithPrefix(labels, b.org.Labels.Area))
	if len(areas) > 0 || !b.policy.areasFromTeams {
		return extract.NonEmpty(areas)
	}
	for _, team := range distinct(extract.LabelsWithPrefix(labels, b.org.Labels.Team)) {
		if a, ok := b.associate(team, b.knownAreas).Get(); ok && !slices.Contains(areas, a) {
			areas = append(areas, a)
		}
	}
	return extract.NonEmpty(areas)
}

func (b *builder) teamsFor(is tracker.Issue, parentLabels []string) extract.Option[[]string] {
	return extract.First(
		func() extract.Option[[]string] {
			return extract.NonEmpty(distinct(extract.LabelsWithPrefix(is.Fields.Labels, b.org.Labels.Team)))
		},
		func() extract.Option[[]string] {
			return extract.Map(b.assigneeTeam(is), func(t string) []string { return []string{t} })
		},
		func() extract.Option[[]string] {
			return extract.NonEmpty(distinct(extract.LabelsWithPrefix(parentLabels, b.org.Labels.Team)))
		},
	)
}

func (b *builder) assigneeTeam(is tracker.Issue) extract.Option[string] {
	p, ok := extract.Assignee(is).Get()
	if !ok {
		return extract.None[string]()
	}
	return extract.NonBlank(b.org.AssigneeTeams[p.ID])
}

// associate maps a team to its area: explicit mapping first, then the first
// candidate area whose id prefixes the team id.
func (b *builder) associate(team string, candidates []string) extract.Option[string] {
	if a, ok := b.org.TeamAreas[team]; ok && a != "" {
		return extract.Some(a)
	}
	for _, a := range candidates {
		if a != "" && a != domain.UnassignedAreaID && strings.HasPrefix(team, a) {
			return extract.Some(a)
		}
	}
	return extract.None[string]()
}

// stageFor resolves the stage: custom field (default adapter), label, then the
// parenthetical in the issue name. Unknown values fall back to the default.
func (b *builder) stageFor(is tracker.Issue) (string, []domain.ValidationItem) {
	raw := extract.First(
		func() extract.Option[string] {
			if !b.policy.stageField {
				return extract.None[string]()
			}
			return extract.CustomString(is, b.org.Fields.Stage)
		},
		func() extract.Option[string] {
			return firstNonBlank(extract.LabelsWithPrefix(is.Fields.Labels, b.org.Labels.Stage))
		},
		func() extract.Option[string] { return extract.StageFromName(is.Fields.Summary) },
	)
	v, ok := raw.Get()
	if !ok {
		return fallback(b, raw, is.Key, "stage", b.org.Defaults.Stage)
	}
	v = strings.ToLower(strings.TrimSpace(v))
	if _, known := domain.StageOrdinal(v); !known {
		b.logger.Warn("unknown stage; using default", "subject", is.Key, "field", "stage", "value", v, "default", b.org.Defaults.Stage)
		return b.org.Defaults.Stage, validate.Invalid(is.Key, "stage", v, b.rules)
	}
	return v, nil
}

// resolveObjectives applies the default objective when the run carried no
// objective signal at all; otherwise bets without one get a diagnostic.
func (b *builder) resolveObjectives(bets []domain.RoadmapBet) {
	if len(b.objectives.ids) == 0 {
		def := b.org.Defaults.Objective
		b.objectives.add(def, "")
		for i := range bets {
			bets[i].ObjectiveID = &def
		}
		return
	}
	for i := range bets {
		if bets[i].ObjectiveID != nil || bets[i].ID == domain.UnplannedBetID {
			continue
		}
		bets[i].Validations = validate.Concat(bets[i].Validations,
			validate.RequiredOption(extract.FromPtr(bets[i].ObjectiveID), bets[i].TicketID, "objective", b.rules))
	}
}

// assembleAreas attaches every team to an area. Teams matching no area land in
// a single unassigned area created on first use.
func (b *builder) assembleAreas() []domain.Area {
	byArea := make(map[string][]domain.Team)
	for _, id := range b.teams.ids {
		team := domain.Team{ID: id, Name: b.teams.names[id]}
		area, ok := b.associate(id, b.areas.ids).Get()
		if !ok {
			area = domain.UnassignedAreaID
			b.areas.add(area, "Unassigned")
		} else {
			b.areas.add(area, b.areaNames[area])
		}
		byArea[area] = append(byArea[area], team)
	}
	out := make([]domain.Area, 0, len(b.areas.ids))
	for _, id := range b.areas.ids {
		teams := byArea[id]
		if teams == nil {
			teams = []domain.Team{}
		}
		out = append(out, domain.Area{ID: id, Name: b.areas.names[id], Teams: teams})
	}
	return out
}

func (b *builder) teamList() []domain.Team {
	out := make([]domain.Team, 0, len(b.teams.ids))
	for _, id := range b.teams.ids {
		out = append(out, domain.Team{ID: id, Name: b.teams.names[id]})
	}
	return out
}

func (b *builder) objectiveList() []domain.Objective {
	out := make([]domain.Objective, 0, len(b.objectives.ids))
	for _, id := range b.objectives.ids {
		out = append(out, domain.Objective{ID: id, Name: b.objectives.names[id]})
	}
	return out
}

// fallback returns the derived value, or def with a logged data-quality gap
// and exactly one diagnostic.
func fallback[T any](b *builder, o extract.Option[T], subject, field string, def T) (T, []domain.ValidationItem) {
	if v, ok := o.Get(); ok {
		return v, nil
	}
	b.logger.Warn("data quality gap; using default", "subject", subject, "field", field, "default", def)
	return def, validate.RequiredOption(o, subject, field, b.rules)
}

func issueID(is tracker.Issue) string {
	if is.ID != "" {
		return is.ID
	}
	return is.Key
}

func firstNonBlank(values []string) extract.Option[string] {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return extract.Some(strings.TrimSpace(v))
		}
	}
	return extract.None[string]()
}

func distinct(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// comparePeople orders people the way extract.AllAssignees does: by display
// name, then id.
func comparePeople(a, b domain.Person) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
