// Package compliance derives a staff member's lifecycle phase, warnings and
// next action from their dates and checklist state. Everything here is a
// pure function of its inputs plus the engine's clock.
package compliance

import (
	"fmt"
	"time"

	"github.com/sswtrack/sswtrack/internal/rules"
)

// Severity orders warnings and tasks. Critical sorts first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityNormal   Severity = "normal"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityNormal:
		return 2
	}
	return 3
}

// WarningKind is a stable code the UI can localise.
type WarningKind string

const (
	WarningPreparationIncomplete WarningKind = "preparation_incomplete"
	WarningEntryFilingOverdue    WarningKind = "entry_filing_overdue"
	WarningEntryFilingDue        WarningKind = "entry_filing_due"
	WarningResidenceExpired      WarningKind = "residence_expired"
	WarningRenewalUrgent         WarningKind = "renewal_urgent"
	WarningRenewalSoon           WarningKind = "renewal_soon"
	WarningRenewalUpcoming       WarningKind = "renewal_upcoming"
)

type Warning struct {
	Kind     WarningKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Days     int         `json:"days"`
}

// Action is the single recommended next step.
type Action string

const (
	ActionNone                Action = "none"
	ActionCompletePreparation Action = "complete_preparation"
	ActionCompleteEntryFiling Action = "complete_entry_filing"
	ActionStartRenewal        Action = "start_renewal"
	ActionCompleteExit        Action = "complete_exit"
)

// EmploymentStatus is the stored lifecycle state of a staff record.
type EmploymentStatus string

const (
	StatusActive   EmploymentStatus = "active"
	StatusExiting  EmploymentStatus = "exiting"
	StatusArchived EmploymentStatus = "archived"
)

// ParseEmploymentStatus reports whether v names a known status.
func ParseEmploymentStatus(v string) (EmploymentStatus, bool) {
	switch s := EmploymentStatus(v); s {
	case StatusActive, StatusExiting, StatusArchived:
		return s, true
	}
	return "", false
}

var transitions = map[EmploymentStatus][]EmploymentStatus{
	StatusActive:   {StatusExiting},
	StatusExiting:  {StatusArchived},
	StatusArchived: {StatusActive},
}

// CanTransition reports whether a staff record may move from one status to
// another.
func CanTransition(from, to EmploymentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Staff is the subset of a staff record the engine reads.
type Staff struct {
	ID              string
	Name            string
	Sector          rules.Sector
	EntryDate       time.Time
	ResidenceExpiry time.Time
	Status          EmploymentStatus
	VisitCareReady  bool
}

// Status is the derived compliance view of one staff member.
type Status struct {
	StaffID         string                     `json:"staff_id"`
	Phase           rules.PhaseID              `json:"phase"`
	HasEntered      bool                       `json:"has_entered"`
	DaysSinceEntry  int                        `json:"days_since_entry"`
	DaysUntilExpiry int                        `json:"days_until_expiry"`
	Urgency         Severity                   `json:"urgency"`
	Warnings        []Warning                  `json:"warnings"`
	NextAction      Action                     `json:"next_action"`
	Progress        map[rules.PhaseID]Progress `json:"progress"`
}

// Clock abstracts time.Now for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Engine evaluates staff against a rule set.
type Engine struct {
	rules rules.Set
	clock Clock
}

// NewEngine returns an engine over set. A nil clock uses the wall clock.
func NewEngine(set rules.Set, clock Clock) *Engine {
	if clock == nil {
		clock = realClock{}
	}
	return &Engine{rules: set, clock: clock}
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() rules.Set { return e.rules }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// phaseView holds per-phase progress for one staff member. Phases the rule
// set does not define produce no signal.
type phaseView map[rules.PhaseID]Progress

func (v phaseView) pending(id rules.PhaseID) bool {
	p, ok := v[id]
	return ok && !p.Complete()
}

// Progress returns persisted progress for every phase of the staff's sector.
func (e *Engine) Progress(s Staff, state Checklist) map[rules.PhaseID]Progress {
	out := make(map[rules.PhaseID]Progress)
	for _, ph := range e.rules.Phases(s.Sector) {
		out[ph.ID] = PhaseProgress(ph, state, nil)
	}
	return out
}

// Evaluate derives the full status of s. Warnings are ordered preparation,
// entry filing, then residence, matching their evaluation order.
func (e *Engine) Evaluate(s Staff, state Checklist) Status {
	now := e.clock.Now()
	view := phaseView(e.Progress(s, state))

	st := Status{
		StaffID:         s.ID,
		HasEntered:      HasEntered(s.EntryDate, now),
		DaysUntilExpiry: DaysUntil(s.ResidenceExpiry, now),
		Warnings:        []Warning{},
		Progress:        view,
	}
	if st.HasEntered {
		st.DaysSinceEntry = -DaysUntil(s.EntryDate, now)
	}

	if s.Status != StatusArchived {
		st.Warnings = e.warnings(st, view)
	}

	switch {
	case view.pending(rules.PhasePreparation):
		st.Phase, st.NextAction = rules.PhasePreparation, ActionCompletePreparation
	case st.HasEntered && view.pending(rules.PhaseEntry):
		st.Phase, st.NextAction = rules.PhaseEntry, ActionCompleteEntryFiling
	case st.DaysUntilExpiry <= renewalHorizonDays && view.pending(rules.PhaseRenewal):
		st.Phase, st.NextAction = rules.PhaseRenewal, ActionStartRenewal
	default:
		st.Phase, st.NextAction = rules.PhaseOngoing, ActionNone
	}

	switch s.Status {
	case StatusExiting:
		st.Phase, st.NextAction = rules.PhaseExit, ActionNone
		if view.pending(rules.PhaseExit) {
			st.NextAction = ActionCompleteExit
		}
	case StatusArchived:
		st.Phase, st.NextAction = rules.PhaseExit, ActionNone
	}

	st.Urgency = SeverityNormal
	for _, w := range st.Warnings {
		if w.Severity.rank() < st.Urgency.rank() {
			st.Urgency = w.Severity
		}
	}
	return st
}

const (
	renewalHorizonDays = 90
	renewalSoonDays    = 60
	renewalUrgentDays  = 30
)

func (e *Engine) warnings(st Status, view phaseView) []Warning {
	out := []Warning{}
	if st.HasEntered && view.pending(rules.PhasePreparation) {
		p := view[rules.PhasePreparation]
		out = append(out, Warning{
			Kind:     WarningPreparationIncomplete,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("preparation checklist incomplete after entry (%d/%d)", p.Completed, p.Total),
		})
	}
	if w, ok := entryFilingWarning(st, view); ok {
		out = append(out, w)
	}
	if w, ok := residenceWarning(st.DaysUntilExpiry, view.pending(rules.PhaseRenewal)); ok {
		out = append(out, w)
	}
	return out
}

func entryFilingWarning(st Status, view phaseView) (Warning, bool) {
	if !st.HasEntered || !view.pending(rules.PhaseEntry) {
		return Warning{}, false
	}
	remaining := entryFilingDeadlineDays - st.DaysSinceEntry
	switch {
	case remaining <= 0:
		return Warning{
			Kind:     WarningEntryFilingOverdue,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("onboarding filing deadline passed: %d days overdue", -remaining),
			Days:     remaining,
		}, true
	case remaining <= entryFilingWarnDays:
		return Warning{
			Kind:     WarningEntryFilingDue,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("onboarding filing due: %d days remaining", remaining),
			Days:     remaining,
		}, true
	}
	return Warning{}, false
}

// residenceWarning maps days-until-expiry onto the renewal ladder. An
// expired permit is always reported; the remaining rungs are suppressed
// once the renewal checklist is complete.
func residenceWarning(days int, renewalPending bool) (Warning, bool) {
	if days == NoDate {
		return Warning{}, false
	}
	if days <= 0 {
		msg := fmt.Sprintf("residence permit expired %d days ago", -days)
		if days == 0 {
			msg = "residence permit expires today"
		}
		return Warning{
			Kind:     WarningResidenceExpired,
			Severity: SeverityCritical,
			Message:  msg,
			Days:     days,
		}, true
	}
	if !renewalPending {
		return Warning{}, false
	}
	switch {
	case days <= renewalUrgentDays:
		return Warning{
			Kind:     WarningRenewalUrgent,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("residence permit expires in %d days: file renewal now", days),
			Days:     days,
		}, true
	case days <= renewalSoonDays:
		return Warning{
			Kind:     WarningRenewalSoon,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("residence permit expires in %d days: prepare renewal", days),
			Days:     days,
		}, true
	case days <= renewalHorizonDays:
		return Warning{
			Kind:     WarningRenewalUpcoming,
			Severity: SeverityNormal,
			Message:  fmt.Sprintf("residence permit expires in %d days", days),
			Days:     days,
		}, true
	}
	return Warning{}, false
}
