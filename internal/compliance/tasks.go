package compliance

import (
	"fmt"
	"sort"
	"time"

	"github.com/sswtrack/sswtrack/internal/rules"
)

// TaskType names a cross-staff deadline.
type TaskType string

const (
	TaskResidenceExpired     TaskType = "residence_expired"
	TaskResidenceNearExpiry  TaskType = "residence_near_expiry"
	TaskEntryFilingOverdue   TaskType = "entry_filing_overdue"
	TaskEntryFilingDue       TaskType = "entry_filing_due"
	TaskPeriodicInterviewDue TaskType = "periodic_interview_due"
	TaskAnnualReportDue      TaskType = "annual_report_due"
)

// Task is one actionable item on the facility-wide list.
type Task struct {
	StaffID   string    `json:"staff_id"`
	StaffName string    `json:"staff_name"`
	Type      TaskType  `json:"type"`
	Urgency   Severity  `json:"urgency"`
	Message   string    `json:"message"`
	Days      int       `json:"days"`
	Due       time.Time `json:"due,omitzero"`
}

// Subject pairs a staff record with its persisted checklist.
type Subject struct {
	Staff     Staff
	Checklist Checklist
}

type taskRule func(e *Engine, now time.Time, s Subject, view phaseView) (Task, bool)

// taskRules run in order across the whole roster, so within one urgency
// residency tasks precede filing tasks, which precede interview tasks.
var taskRules = []taskRule{
	residenceTask,
	entryFilingTask,
	periodicInterviewTask,
	annualReportTask,
}

// Tasks builds the facility-wide task list. Archived staff are skipped.
// The result is stably sorted critical, warning, normal.
func (e *Engine) Tasks(subjects []Subject) []Task {
	now := e.clock.Now()
	views := make([]phaseView, len(subjects))
	for i, s := range subjects {
		views[i] = phaseView(e.Progress(s.Staff, s.Checklist))
	}

	tasks := []Task{}
	for _, rule := range taskRules {
		for i, s := range subjects {
			if s.Staff.Status == StatusArchived {
				continue
			}
			if t, ok := rule(e, now, s, views[i]); ok {
				t.StaffID, t.StaffName = s.Staff.ID, s.Staff.Name
				tasks = append(tasks, t)
			}
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Urgency.rank() < tasks[j].Urgency.rank()
	})
	return tasks
}

func residenceTask(_ *Engine, now time.Time, s Subject, view phaseView) (Task, bool) {
	days := DaysUntil(s.Staff.ResidenceExpiry, now)
	w, ok := residenceWarning(days, view.pending(rules.PhaseRenewal))
	if !ok {
		return Task{}, false
	}
	t := Task{
		Type:    TaskResidenceNearExpiry,
		Urgency: w.Severity,
		Message: w.Message,
		Days:    days,
		Due:     s.Staff.ResidenceExpiry,
	}
	if w.Kind == WarningResidenceExpired {
		t.Type = TaskResidenceExpired
	}
	return t, true
}

func entryFilingTask(_ *Engine, now time.Time, s Subject, view phaseView) (Task, bool) {
	st := Status{HasEntered: HasEntered(s.Staff.EntryDate, now)}
	if st.HasEntered {
		st.DaysSinceEntry = -DaysUntil(s.Staff.EntryDate, now)
	}
	w, ok := entryFilingWarning(st, view)
	if !ok {
		return Task{}, false
	}
	t := Task{
		Type:    TaskEntryFilingDue,
		Urgency: w.Severity,
		Message: w.Message,
		Days:    w.Days,
		Due:     s.Staff.EntryDate.AddDate(0, 0, entryFilingDeadlineDays),
	}
	if w.Kind == WarningEntryFilingOverdue {
		t.Type = TaskEntryFilingOverdue
	}
	return t, true
}

func periodicInterviewTask(_ *Engine, now time.Time, s Subject, _ phaseView) (Task, bool) {
	due, ok := NextPeriodicInterviewDate(s.Staff.EntryDate, now)
	if !ok {
		return Task{}, false
	}
	return Task{
		Type:    TaskPeriodicInterviewDue,
		Urgency: SeverityNormal,
		Message: fmt.Sprintf("periodic interview due %s", FormatMonthDay(due)),
		Days:    DaysUntil(due, now),
		Due:     due,
	}, true
}

// annualReportTask fires during April–May for entered staff whose annual
// report item has not been checked since April 1 of the current year.
func annualReportTask(e *Engine, now time.Time, s Subject, _ phaseView) (Task, bool) {
	if !IsAnnualReportWindow(now) || !HasEntered(s.Staff.EntryDate, now) {
		return Task{}, false
	}
	ongoing, ok := e.rules.Phase(s.Staff.Sector, rules.PhaseOngoing)
	if !ok {
		return Task{}, false
	}
	start := annualReportWindowStart(now)
	for _, it := range ongoing.Items {
		if it.Kind != rules.ItemKindAnnualReport {
			continue
		}
		st := s.Checklist[it.ID]
		if st.Completed && (st.CompletedAt.IsZero() || !st.CompletedAt.Before(start)) {
			return Task{}, false
		}
		deadline := time.Date(now.Year(), time.May, 31, 0, 0, 0, 0, now.Location())
		return Task{
			Type:    TaskAnnualReportDue,
			Urgency: SeverityNormal,
			Message: fmt.Sprintf("annual periodic report due by %s", FormatMonthDay(deadline)),
			Days:    DaysUntil(deadline, now),
			Due:     deadline,
		}, true
	}
	return Task{}, false
}
