package compliance

import (
	"math"
	"time"
)

// NoDate is returned by DaysUntil for an absent date. It reads as "far
// future" so missing dates never look urgent.
const NoDate = 999

const (
	periodicInterviewMonths = 3
	interviewReminderDays   = 30
	entryFilingDeadlineDays = 14
	entryFilingWarnDays     = 7
	dateLayout              = "2006-01-02"
)

// DaysUntil returns ceil((t-now) / 1 day). Negative values mean t has
// already passed. A zero t yields NoDate.
func DaysUntil(t, now time.Time) int {
	if t.IsZero() {
		return NoDate
	}
	days := float64(t.Sub(now)) / float64(24*time.Hour)
	return int(math.Ceil(days))
}

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight. Empty or
// malformed input yields the zero time.
func ParseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatDate renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// FormatMonthDay renders t as M/D.
func FormatMonthDay(t time.Time) string {
	return t.Format("1/2")
}

// NextPeriodicInterviewDate walks forward from entry in 3-month steps to the
// first date strictly after now. The date is returned only when it falls
// within 30 days; otherwise no reminder is due yet. Staff without an entry
// date, or whose entry is still in the future, are never due.
func NextPeriodicInterviewDate(entry, now time.Time) (time.Time, bool) {
	if entry.IsZero() || entry.After(now) {
		return time.Time{}, false
	}
	candidate := entry
	for k := 1; !candidate.After(now); k++ {
		// Offsets are taken from entry so month-end dates do not drift.
		candidate = entry.AddDate(0, periodicInterviewMonths*k, 0)
	}
	if DaysUntil(candidate, now) > interviewReminderDays {
		return time.Time{}, false
	}
	return candidate, true
}

// IsAnnualReportWindow reports whether now falls in the April–May filing
// window for the yearly periodic report.
func IsAnnualReportWindow(now time.Time) bool {
	m := now.Month()
	return m == time.April || m == time.May
}

// annualReportWindowStart returns April 1 of now's year.
func annualReportWindowStart(now time.Time) time.Time {
	return time.Date(now.Year(), time.April, 1, 0, 0, 0, 0, now.Location())
}

// HasEntered reports whether the entry date is set and not in the future.
func HasEntered(entry, now time.Time) bool {
	return !entry.IsZero() && !entry.After(now)
}

// VisitCareEligible reports whether at least one full year has passed
// between entry and at.
func VisitCareEligible(entry, at time.Time) bool {
	if entry.IsZero() {
		return false
	}
	return !entry.AddDate(1, 0, 0).After(at)
}

// ResidenceExpiryFor derives the initial residence expiry from an entry
// date: one year later.
func ResidenceExpiryFor(entry time.Time) time.Time {
	if entry.IsZero() {
		return time.Time{}
	}
	return entry.AddDate(1, 0, 0)
}
