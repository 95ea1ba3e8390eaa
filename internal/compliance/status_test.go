package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sswtrack/sswtrack/internal/rules"
)

var testNow = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func engineAt(at time.Time) *Engine {
	return NewEngine(rules.Default(), ClockFunc(func() time.Time { return at }))
}

// done returns a checklist with every item of the given phases checked.
func done(t *testing.T, sector rules.Sector, phases ...rules.PhaseID) Checklist {
	t.Helper()
	c := Checklist{}
	for _, id := range phases {
		p, ok := rules.Default().Phase(sector, id)
		require.True(t, ok, "phase %s", id)
		for _, it := range p.Items {
			c[it.ID] = ItemState{Completed: true, CompletedAt: testNow}
		}
	}
	return c
}

func kaigoStaff(entry time.Time) Staff {
	return Staff{
		ID:              "s1",
		Name:            "Nguyen",
		Sector:          rules.SectorKaigo,
		EntryDate:       entry,
		ResidenceExpiry: ResidenceExpiryFor(entry),
		Status:          StatusActive,
	}
}

func TestEvaluateEntryFilingDue(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(0, 0, -9))
	st := engineAt(testNow).Evaluate(s, done(t, rules.SectorKaigo, rules.PhasePreparation))

	assert.True(t, st.HasEntered)
	assert.Equal(t, 9, st.DaysSinceEntry)
	assert.Equal(t, rules.PhaseEntry, st.Phase)
	assert.Equal(t, ActionCompleteEntryFiling, st.NextAction)
	require.Len(t, st.Warnings, 1)
	assert.Equal(t, WarningEntryFilingDue, st.Warnings[0].Kind)
	assert.Equal(t, SeverityWarning, st.Warnings[0].Severity)
	assert.Contains(t, st.Warnings[0].Message, "5 days remaining")
	assert.Equal(t, SeverityWarning, st.Urgency)
}

func TestEvaluateEntryFilingOverdue(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(0, 0, -19))
	st := engineAt(testNow).Evaluate(s, done(t, rules.SectorKaigo, rules.PhasePreparation))

	require.Len(t, st.Warnings, 1)
	assert.Equal(t, WarningEntryFilingOverdue, st.Warnings[0].Kind)
	assert.Equal(t, SeverityCritical, st.Warnings[0].Severity)
	assert.Contains(t, st.Warnings[0].Message, "5 days overdue")
	assert.Equal(t, SeverityCritical, st.Urgency)
}

func TestEvaluateEntryFilingQuietEarly(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(0, 0, -3))
	st := engineAt(testNow).Evaluate(s, done(t, rules.SectorKaigo, rules.PhasePreparation))
	assert.Empty(t, st.Warnings)
	assert.Equal(t, rules.PhaseEntry, st.Phase)
	assert.Equal(t, SeverityNormal, st.Urgency)
}

func TestEvaluateRenewalLadder(t *testing.T) {
	state := done(t, rules.SectorKaigo, rules.PhasePreparation, rules.PhaseEntry)
	cases := []struct {
		days     int
		kind     WarningKind
		severity Severity
	}{
		{25, WarningRenewalUrgent, SeverityCritical},
		{45, WarningRenewalSoon, SeverityWarning},
		{75, WarningRenewalUpcoming, SeverityNormal},
	}
	for _, tc := range cases {
		s := kaigoStaff(testNow.AddDate(0, 0, -300))
		s.ResidenceExpiry = testNow.AddDate(0, 0, tc.days)
		st := engineAt(testNow).Evaluate(s, state)

		require.Len(t, st.Warnings, 1, "days=%d", tc.days)
		assert.Equal(t, tc.kind, st.Warnings[0].Kind)
		assert.Equal(t, tc.severity, st.Warnings[0].Severity)
		assert.Equal(t, tc.days, st.Warnings[0].Days)
		assert.Equal(t, tc.severity, st.Urgency)
		assert.Equal(t, rules.PhaseRenewal, st.Phase)
		assert.Equal(t, ActionStartRenewal, st.NextAction)
	}
}

func TestEvaluateRenewalLadderBoundaries(t *testing.T) {
	state := done(t, rules.SectorKaigo, rules.PhasePreparation, rules.PhaseEntry)
	// Off midnight so DaysUntil has to round up.
	now := testNow.Add(5 * time.Hour)
	cases := []struct {
		days     int
		kind     WarningKind
		severity Severity
		message  string
	}{
		{-1, WarningResidenceExpired, SeverityCritical, "expired 1 days ago"},
		{0, WarningResidenceExpired, SeverityCritical, "expires today"},
		{1, WarningRenewalUrgent, SeverityCritical, "expires in 1 days"},
		{30, WarningRenewalUrgent, SeverityCritical, "expires in 30 days"},
		{31, WarningRenewalSoon, SeverityWarning, ""},
		{60, WarningRenewalSoon, SeverityWarning, ""},
		{61, WarningRenewalUpcoming, SeverityNormal, ""},
		{90, WarningRenewalUpcoming, SeverityNormal, ""},
	}
	for _, tc := range cases {
		s := kaigoStaff(testNow.AddDate(0, 0, -300))
		s.ResidenceExpiry = testNow.AddDate(0, 0, tc.days)
		st := engineAt(now).Evaluate(s, state)

		assert.Equal(t, tc.days, st.DaysUntilExpiry, "days=%d", tc.days)
		require.Len(t, st.Warnings, 1, "days=%d", tc.days)
		assert.Equal(t, tc.kind, st.Warnings[0].Kind, "days=%d", tc.days)
		assert.Equal(t, tc.severity, st.Warnings[0].Severity, "days=%d", tc.days)
		assert.Equal(t, tc.severity, st.Urgency, "days=%d", tc.days)
		assert.Contains(t, st.Warnings[0].Message, tc.message, "days=%d", tc.days)
		assert.Equal(t, rules.PhaseRenewal, st.Phase, "days=%d", tc.days)
	}

	s := kaigoStaff(testNow.AddDate(0, 0, -300))
	s.ResidenceExpiry = testNow.AddDate(0, 0, 91)
	st := engineAt(now).Evaluate(s, state)
	assert.Equal(t, 91, st.DaysUntilExpiry)
	assert.Empty(t, st.Warnings)
	assert.Equal(t, rules.PhaseOngoing, st.Phase)
	assert.Equal(t, ActionNone, st.NextAction)
}

func TestEvaluateEntryFilingBoundaries(t *testing.T) {
	state := done(t, rules.SectorKaigo, rules.PhasePreparation)
	now := testNow.Add(5 * time.Hour)
	cases := []struct {
		since     int
		kind      WarningKind
		remaining int
	}{
		{6, "", 8},
		{7, WarningEntryFilingDue, 7},
		{13, WarningEntryFilingDue, 1},
		{14, WarningEntryFilingOverdue, 0},
		{15, WarningEntryFilingOverdue, -1},
	}
	for _, tc := range cases {
		st := engineAt(now).Evaluate(kaigoStaff(testNow.AddDate(0, 0, -tc.since)), state)

		assert.Equal(t, tc.since, st.DaysSinceEntry)
		if tc.kind == "" {
			assert.Empty(t, st.Warnings, "since=%d", tc.since)
			continue
		}
		require.Len(t, st.Warnings, 1, "since=%d", tc.since)
		assert.Equal(t, tc.kind, st.Warnings[0].Kind, "since=%d", tc.since)
		assert.Equal(t, tc.remaining, st.Warnings[0].Days, "since=%d", tc.since)
	}
}

func TestEvaluateEntryFilingCalendarScenario(t *testing.T) {
	entry := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 10, 14, 30, 0, 0, time.UTC)
	st := engineAt(now).Evaluate(kaigoStaff(entry), done(t, rules.SectorKaigo, rules.PhasePreparation))

	require.Len(t, st.Warnings, 1)
	assert.Equal(t, WarningEntryFilingDue, st.Warnings[0].Kind)
	assert.Contains(t, st.Warnings[0].Message, "5 days remaining")
}

func TestEvaluateRenewalCompleteSuppressesLadder(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(0, 0, -340))
	s.ResidenceExpiry = testNow.AddDate(0, 0, 25)
	st := engineAt(testNow).Evaluate(s, done(t, rules.SectorKaigo,
		rules.PhasePreparation, rules.PhaseEntry, rules.PhaseRenewal))

	assert.Empty(t, st.Warnings)
	assert.Equal(t, rules.PhaseOngoing, st.Phase)
	assert.Equal(t, ActionNone, st.NextAction)
}

func TestEvaluateExpiredAlwaysCritical(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(-1, 0, -2))
	st := engineAt(testNow).Evaluate(s, done(t, rules.SectorKaigo,
		rules.PhasePreparation, rules.PhaseEntry, rules.PhaseRenewal))

	require.Len(t, st.Warnings, 1)
	assert.Equal(t, WarningResidenceExpired, st.Warnings[0].Kind)
	assert.Equal(t, SeverityCritical, st.Urgency)
	assert.LessOrEqual(t, st.DaysUntilExpiry, 0)
}

func TestEvaluateAllComplete(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(0, 0, -100))
	st := engineAt(testNow).Evaluate(s, done(t, rules.SectorKaigo,
		rules.PhasePreparation, rules.PhaseEntry, rules.PhaseOngoing, rules.PhaseRenewal))

	assert.Equal(t, rules.PhaseOngoing, st.Phase)
	assert.Empty(t, st.Warnings)
	assert.Equal(t, ActionNone, st.NextAction)
	assert.Equal(t, SeverityNormal, st.Urgency)
	assert.Equal(t, 100, st.Progress[rules.PhaseEntry].Percentage)
}

func TestEvaluatePreparation(t *testing.T) {
	// Before entry an incomplete preparation is the next step but not a
	// warning.
	s := kaigoStaff(testNow.AddDate(0, 0, 20))
	st := engineAt(testNow).Evaluate(s, Checklist{})
	assert.False(t, st.HasEntered)
	assert.Equal(t, 0, st.DaysSinceEntry)
	assert.Equal(t, rules.PhasePreparation, st.Phase)
	assert.Equal(t, ActionCompletePreparation, st.NextAction)
	assert.Empty(t, st.Warnings)

	s = kaigoStaff(testNow.AddDate(0, 0, -2))
	st = engineAt(testNow).Evaluate(s, Checklist{})
	require.NotEmpty(t, st.Warnings)
	assert.Equal(t, WarningPreparationIncomplete, st.Warnings[0].Kind)
	assert.Equal(t, SeverityCritical, st.Urgency)
}

func TestEvaluateWarningOrder(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(0, 0, -20))
	s.ResidenceExpiry = testNow.AddDate(0, 0, 10)
	st := engineAt(testNow).Evaluate(s, Checklist{})

	kinds := make([]WarningKind, 0, len(st.Warnings))
	for _, w := range st.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Equal(t, []WarningKind{WarningPreparationIncomplete, WarningEntryFilingOverdue, WarningRenewalUrgent}, kinds)
}

func TestEvaluateExitOverridesPhase(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(0, 0, -100))
	s.Status = StatusExiting
	state := done(t, rules.SectorKaigo, rules.PhasePreparation, rules.PhaseEntry)

	st := engineAt(testNow).Evaluate(s, state)
	assert.Equal(t, rules.PhaseExit, st.Phase)
	assert.Equal(t, ActionCompleteExit, st.NextAction)

	for id, v := range done(t, rules.SectorKaigo, rules.PhaseExit) {
		state[id] = v
	}
	st = engineAt(testNow).Evaluate(s, state)
	assert.Equal(t, ActionNone, st.NextAction)
}

func TestEvaluateArchivedHasNoWarnings(t *testing.T) {
	s := kaigoStaff(testNow.AddDate(-2, 0, 0))
	s.Status = StatusArchived
	st := engineAt(testNow).Evaluate(s, Checklist{})
	assert.Empty(t, st.Warnings)
	assert.Equal(t, rules.PhaseExit, st.Phase)
	assert.Equal(t, SeverityNormal, st.Urgency)
}

func TestEvaluateMissingDates(t *testing.T) {
	s := Staff{ID: "x", Sector: rules.SectorGaishoku, Status: StatusActive}
	st := engineAt(testNow).Evaluate(s, done(t, rules.SectorGaishoku, rules.PhasePreparation))
	assert.False(t, st.HasEntered)
	assert.Equal(t, NoDate, st.DaysUntilExpiry)
	assert.Empty(t, st.Warnings)
	assert.Equal(t, rules.PhaseOngoing, st.Phase)
}

func TestEvaluateUnknownSector(t *testing.T) {
	s := Staff{ID: "x", Sector: "construction", EntryDate: testNow.AddDate(0, 0, -30), Status: StatusActive}
	st := engineAt(testNow).Evaluate(s, nil)
	assert.Empty(t, st.Progress)
	assert.Empty(t, st.Warnings)
}

func TestEvaluateSyntheticRules(t *testing.T) {
	tbl, err := rules.New([]rules.SectorRules{{
		ID: "test",
		Phases: []rules.Phase{
			{ID: rules.PhasePreparation, Items: []rules.Item{{ID: "p"}}},
			{ID: rules.PhaseEntry, Items: []rules.Item{{ID: "e"}}},
			{ID: rules.PhaseOngoing},
			{ID: rules.PhaseRenewal, Items: []rules.Item{{ID: "r"}}},
			{ID: rules.PhaseExit},
		},
	}})
	require.NoError(t, err)

	e := NewEngine(tbl, ClockFunc(func() time.Time { return testNow }))
	s := Staff{ID: "x", Sector: "test", EntryDate: testNow.AddDate(0, 0, -10), Status: StatusActive}
	st := e.Evaluate(s, Checklist{"p": {Completed: true}})
	require.Len(t, st.Warnings, 1)
	assert.Equal(t, WarningEntryFilingDue, st.Warnings[0].Kind)
	assert.Equal(t, 4, st.Warnings[0].Days)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusActive, StatusExiting))
	assert.True(t, CanTransition(StatusExiting, StatusArchived))
	assert.True(t, CanTransition(StatusArchived, StatusActive))
	assert.False(t, CanTransition(StatusActive, StatusArchived))
	assert.False(t, CanTransition(StatusActive, StatusActive))
	assert.False(t, CanTransition("bogus", StatusActive))
}

func TestParseEmploymentStatus(t *testing.T) {
	s, ok := ParseEmploymentStatus("exiting")
	assert.True(t, ok)
	assert.Equal(t, StatusExiting, s)
	_, ok = ParseEmploymentStatus("retired")
	assert.False(t, ok)
}

func TestNewEngineDefaultsClock(t *testing.T) {
	e := NewEngine(rules.Default(), nil)
	assert.WithinDuration(t, time.Now(), e.Now(), time.Minute)
}
