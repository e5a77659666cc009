package domain

import "strings"

type CycleState string

const (
	CycleFuture CycleState = "future"
	CycleActive CycleState = "active"
	CycleClosed CycleState = "closed"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Work item statuses after mapping from the tracker.
const (
	StatusTodo       = "todo"
	StatusInProgress = "inprogress"
	StatusDone       = "done"
)

const (
	// AllAssigneesID is the UI sentinel meaning "every assignee". It never names a person.
	AllAssigneesID = "all"
	// UnassignedAreaID collects teams that match no area.
	UnassignedAreaID = "unassigned"
	// UnplannedBetID parents work items whose tracker parent is not a known bet.
	UnplannedBetID = "unplanned"
)

type Cycle struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	StartDate    string     `json:"startDate"`
	EndDate      string     `json:"endDate"`
	DeliveryDate string     `json:"deliveryDate,omitempty"`
	State        CycleState `json:"state" enum:"future,active,closed"`
}

type ValidationItem struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Severity    Severity `json:"severity" enum:"warning,error"`
	Description string   `json:"description"`
	SubjectID   string   `json:"subjectId"`
}

type RoadmapBet struct {
	ID          string           `json:"id"`
	TicketID    string           `json:"ticketId"`
	Name        string           `json:"name"`
	Summary     string           `json:"summary,omitempty"`
	AreaID      string           `json:"areaId"`
	ObjectiveID *string          `json:"objectiveId,omitempty"`
	TeamID      string           `json:"teamId"`
	Labels      []string         `json:"labels"`
	Validations []ValidationItem `json:"validations"`
}

type WorkItem struct {
	ID           string           `json:"id"`
	TicketID     string           `json:"ticketId"`
	Name         string           `json:"name"`
	Effort       *float64         `json:"effort,omitempty"`
	AreaIDs      []string         `json:"areaIds"`
	TeamIDs      []string         `json:"teamIds"`
	Status       string           `json:"status" enum:"todo,inprogress,done"`
	Stage        string           `json:"stage"`
	AssigneeID   string           `json:"assigneeId"`
	Validations  []ValidationItem `json:"validations"`
	RoadmapBetID string           `json:"roadmapBetId"`
	CycleID      *string          `json:"cycleId,omitempty"`
}

type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Area struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Teams []Team `json:"teams"`
}

type Objective struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Stage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Ordinal int    `json:"ordinal"`
}

// Snapshot is the immutable result of one ingestion run. Its JSON shape is the
// contract between ingestion and projection.
type Snapshot struct {
	Cycles      []Cycle      `json:"cycles"`
	RoadmapBets []RoadmapBet `json:"roadmapBets"`
	WorkItems   []WorkItem   `json:"workItems"`
	Areas       []Area       `json:"areas"`
	Objectives  []Objective  `json:"objectives"`
	Teams       []Team       `json:"teams"`
	Assignees   []Person     `json:"assignees"`
	Stages      []Stage      `json:"stages"`
}

// FilterCriteria narrows a snapshot. Empty fields impose no constraint.
type FilterCriteria struct {
	Area         string   `json:"area,omitempty"`
	ObjectiveIDs []string `json:"objectiveIds,omitempty"`
	StageIDs     []string `json:"stageIds,omitempty"`
	AssigneeIDs  []string `json:"assigneeIds,omitempty"`
	Cycle        string   `json:"cycle,omitempty"`
}

// WithArea returns a copy of c constrained to area.
func (c FilterCriteria) WithArea(area string) FilterCriteria {
	out := c
	out.Area = area
	return out
}

var stageOrder = []string{"s0", "s1", "s2", "s3", "s3+"}

// Stages returns the ordered stage catalogue.
func Stages() []Stage {
	out := make([]Stage, 0, len(stageOrder))
	for i, id := range stageOrder {
		out = append(out, Stage{ID: id, Name: strings.ToUpper(id), Ordinal: i})
	}
	return out
}

// StageOrdinal reports the position of a stage id in the total order.
func StageOrdinal(id string) (int, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for i, s := range stageOrder {
		if s == id {
			return i, true
		}
	}
	return 0, false
}

// ValidationCount tallies diagnostics by severity.
type ValidationCount struct {
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// Diagnostics returns every validation item in the snapshot, bets first.
func (s Snapshot) Diagnostics() []ValidationItem {
	var out []ValidationItem
	for _, b := range s.RoadmapBets {
		out = append(out, b.Validations...)
	}
	for _, w := range s.WorkItems {
		out = append(out, w.Validations...)
	}
	return out
}

// CountDiagnostics tallies the snapshot's diagnostics by severity.
func (s Snapshot) CountDiagnostics() ValidationCount {
	var c ValidationCount
	for _, v := range s.Diagnostics() {
		switch v.Severity {
		case SeverityError:
			c.Errors++
		default:
			c.Warnings++
		}
	}
	return c
}
