package compliance

// Dashboard holds the facility-wide counters.
type Dashboard struct {
	Active         int `json:"active"`
	ExpiringSoon   int `json:"expiring_soon"`
	VisitCareReady int `json:"visit_care_ready"`
	Exiting        int `json:"exiting"`
	Critical       int `json:"critical"`
	Warning        int `json:"warning"`
	Normal         int `json:"normal"`
}

// Summarize counts non-archived staff. ExpiringSoon covers permits with
// 1 to 90 days left; already expired permits show up as critical tasks.
func (e *Engine) Summarize(subjects []Subject, tasks []Task) Dashboard {
	now := e.clock.Now()
	var d Dashboard
	for _, s := range subjects {
		switch s.Staff.Status {
		case StatusArchived:
			continue
		case StatusExiting:
			d.Exiting++
		}
		d.Active++
		if days := DaysUntil(s.Staff.ResidenceExpiry, now); days > 0 && days <= renewalHorizonDays {
			d.ExpiringSoon++
		}
		if s.Staff.VisitCareReady {
			d.VisitCareReady++
		}
	}
	for _, t := range tasks {
		switch t.Urgency {
		case SeverityCritical:
			d.Critical++
		case SeverityWarning:
			d.Warning++
		default:
			d.Normal++
		}
	}
	return d
}
