package roster

import (
	"fmt"
	"strings"
	"time"

	"github.com/sswtrack/sswtrack/internal/auth"
	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/rules"
	"github.com/sswtrack/sswtrack/internal/storage"
)

// ItemView is one checklist item with its persisted state.
type ItemView struct {
	rules.Item
	compliance.ItemState
}

// PhaseView is one phase of a staff member's checklist.
type PhaseView struct {
	ID             rules.PhaseID       `json:"id"`
	Title          string              `json:"title"`
	Icon           string              `json:"icon"`
	LockOnComplete bool                `json:"lock_on_complete"`
	Locked         bool                `json:"locked"`
	Progress       compliance.Progress `json:"progress"`
	Items          []ItemView          `json:"items"`
}

func phaseView(ph rules.Phase, state compliance.Checklist) PhaseView {
	v := PhaseView{
		ID:             ph.ID,
		Title:          ph.Title,
		Icon:           ph.Icon,
		LockOnComplete: ph.LockOnComplete,
		Locked:         compliance.Locked(ph, state),
		Progress:       compliance.PhaseProgress(ph, state, nil),
		Items:          make([]ItemView, len(ph.Items)),
	}
	for i, it := range ph.Items {
		v.Items[i] = ItemView{Item: it, ItemState: state[it.ID]}
	}
	return v
}

func (s *Service) loadPhase(staffID, phaseID string) (storage.Staff, rules.Phase, compliance.Checklist, error) {
	st, err := s.store.GetStaff(staffID)
	if err != nil {
		return storage.Staff{}, rules.Phase{}, nil, err
	}
	ph, ok := s.engine.Rules().Phase(rules.Sector(st.Sector), rules.PhaseID(phaseID))
	if !ok {
		return storage.Staff{}, rules.Phase{}, nil, fmt.Errorf("%w: %s", ErrUnknownPhase, phaseID)
	}
	items, err := s.store.GetChecklist(staffID)
	if err != nil {
		return storage.Staff{}, rules.Phase{}, nil, fmt.Errorf("loading checklist: %w", err)
	}
	return st, ph, checklistState(items), nil
}

// Checklist returns every phase of the staff member's sector.
func (s *Service) Checklist(staffID string) ([]PhaseView, error) {
	st, err := s.store.GetStaff(staffID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetChecklist(staffID)
	if err != nil {
		return nil, fmt.Errorf("loading checklist: %w", err)
	}
	state := checklistState(items)
	phases := s.engine.Rules().Phases(rules.Sector(st.Sector))
	out := make([]PhaseView, len(phases))
	for i, ph := range phases {
		out[i] = phaseView(ph, state)
	}
	return out, nil
}

// draft overlays changes on the persisted state of one phase.
func draft(ph rules.Phase, state compliance.Checklist, changes map[string]bool) (*compliance.Draft[string, bool], error) {
	base := make(map[string]bool, len(ph.Items))
	for _, it := range ph.Items {
		base[it.ID] = state[it.ID].Completed
	}
	d := compliance.NewDraft(base)
	for id, v := range changes {
		if !ph.HasItem(id) {
			return nil, fmt.Errorf("%w: %s is not part of phase %s", ErrUnknownItem, id, ph.ID)
		}
		d.Set(id, v)
	}
	return d, nil
}

// PreviewChecklist returns the progress the phase would have with changes
// applied. Nothing is written.
func (s *Service) PreviewChecklist(staffID, phaseID string, changes map[string]bool) (compliance.Progress, error) {
	_, ph, state, err := s.loadPhase(staffID, phaseID)
	if err != nil {
		return compliance.Progress{}, err
	}
	d, err := draft(ph, state, changes)
	if err != nil {
		return compliance.Progress{}, err
	}
	return compliance.DraftProgress(ph, d), nil
}

// SaveChecklist commits changes to one phase. Only items whose value
// differs from the persisted state are written, all in one transaction.
// A locked phase rejects every change.
func (s *Service) SaveChecklist(actor auth.Identity, staffID, phaseID string, changes map[string]bool) (PhaseView, error) {
	if err := requireWrite(actor); err != nil {
		return PhaseView{}, err
	}
	st, ph, state, err := s.loadPhase(staffID, phaseID)
	if err != nil {
		return PhaseView{}, err
	}
	d, err := draft(ph, state, changes)
	if err != nil {
		return PhaseView{}, err
	}
	diff := d.Changes()
	if len(diff) == 0 {
		return phaseView(ph, state), nil
	}
	if compliance.Locked(ph, state) {
		return PhaseView{}, fmt.Errorf("%w: %s is complete", ErrPhaseLocked, ph.ID)
	}

	if err := s.store.SaveChecklist(staffID, diff, actor.UserID); err != nil {
		return PhaseView{}, err
	}
	s.logActivity(actor, "update", "checklist", st.ID, st.Name, nil, map[string]any{"phase": ph.ID, "items": diff})

	items, err := s.store.GetChecklist(staffID)
	if err != nil {
		return PhaseView{}, fmt.Errorf("reloading checklist: %w", err)
	}
	return phaseView(ph, checklistState(items)), nil
}

// Interview types.
const (
	InterviewRegular = "regular"
	InterviewRenewal = "renewal"
	InterviewExit    = "exit"
	InterviewOther   = "other"
)

func validInterviewType(t string) bool {
	switch t {
	case InterviewRegular, InterviewRenewal, InterviewExit, InterviewOther:
		return true
	}
	return false
}

type NewInterview struct {
	Date                time.Time `json:"date"`
	Content             string    `json:"content"`
	NextActions         string    `json:"next_actions"`
	Type                string    `json:"type"`
	SupervisorInterview bool      `json:"supervisor_interview"`
}

// AddInterview appends an interview record. Type defaults to regular and the
// date to today.
func (s *Service) AddInterview(actor auth.Identity, staffID string, in NewInterview) (storage.Interview, error) {
	if err := requireWrite(actor); err != nil {
		return storage.Interview{}, err
	}
	if in.Type == "" {
		in.Type = InterviewRegular
	}
	if !validInterviewType(in.Type) {
		return storage.Interview{}, invalid("unknown interview type %q", in.Type)
	}
	if strings.TrimSpace(in.Content) == "" {
		return storage.Interview{}, invalid("interview content is required")
	}
	if in.Date.IsZero() {
		in.Date = s.engine.Now()
	}
	st, err := s.store.GetStaff(staffID)
	if err != nil {
		return storage.Interview{}, err
	}

	iv, err := s.store.AddInterview(storage.Interview{
		StaffID:             staffID,
		Date:                in.Date,
		Content:             in.Content,
		NextActions:         in.NextActions,
		Type:                in.Type,
		SupervisorInterview: in.SupervisorInterview,
		InterviewerID:       actor.UserID,
	})
	if err != nil {
		return storage.Interview{}, err
	}
	s.logActivity(actor, "create", "interview", st.ID, st.Name, nil,
		map[string]string{"date": compliance.FormatDate(iv.Date), "type": iv.Type})
	return iv, nil
}

func (s *Service) Interviews(staffID string) ([]storage.Interview, error) {
	if _, err := s.store.GetStaff(staffID); err != nil {
		return nil, err
	}
	return s.store.ListInterviews(staffID)
}

// QualificationView is a sector qualification with the staff member's state.
type QualificationView struct {
	rules.Qualification
	Acquired     bool      `json:"acquired"`
	AcquiredDate time.Time `json:"acquired_date,omitzero"`
}

func (s *Service) Qualifications(staffID string) ([]QualificationView, error) {
	st, err := s.store.GetStaff(staffID)
	if err != nil {
		return nil, err
	}
	held, err := s.store.ListQualifications(staffID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]storage.Qualification, len(held))
	for _, q := range held {
		byID[q.QualificationID] = q
	}

	defs := s.engine.Rules().Qualifications(rules.Sector(st.Sector))
	out := make([]QualificationView, len(defs))
	for i, q := range defs {
		h := byID[q.ID]
		out[i] = QualificationView{Qualification: q, Acquired: h.Acquired, AcquiredDate: h.AcquiredDate}
	}
	return out, nil
}

// SetQualification records whether a qualification is held. Acquiring one
// that grants visit care, once the staff member has a year of tenure, also
// marks them visit-care ready.
func (s *Service) SetQualification(actor auth.Identity, staffID, qualID string, acquired bool, date time.Time) (storage.Staff, error) {
	if err := requireWrite(actor); err != nil {
		return storage.Staff{}, err
	}
	st, err := s.store.GetStaff(staffID)
	if err != nil {
		return storage.Staff{}, err
	}
	def, ok := s.engine.Rules().Qualification(rules.Sector(st.Sector), qualID)
	if !ok {
		return storage.Staff{}, invalid("unknown qualification %q", qualID)
	}
	if acquired && date.IsZero() {
		date = s.engine.Now()
	}
	if !acquired {
		date = time.Time{}
	}

	markVisitCare := acquired && def.GrantsVisitCare && compliance.VisitCareEligible(st.EntryDate, s.engine.Now())
	if err := s.store.SetQualification(storage.Qualification{
		StaffID:         staffID,
		QualificationID: qualID,
		Acquired:        acquired,
		AcquiredDate:    date,
	}, markVisitCare); err != nil {
		return storage.Staff{}, err
	}
	s.logActivity(actor, "update", "qualification", st.ID, st.Name, nil,
		map[string]any{"qualification": qualID, "acquired": acquired, "visit_care_ready": markVisitCare || st.VisitCareReady})
	return s.store.GetStaff(staffID)
}
