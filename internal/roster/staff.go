package roster

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sswtrack/sswtrack/internal/auth"
	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/export"
	"github.com/sswtrack/sswtrack/internal/rules"
	"github.com/sswtrack/sswtrack/internal/storage"
)

// NewStaff is the input for registering a staff member.
type NewStaff struct {
	FacilityID  string    `json:"facility_id"`
	Name        string    `json:"name"`
	NameKana    string    `json:"name_kana"`
	Nationality string    `json:"nationality"`
	Sector      string    `json:"sector"`
	EntryDate   time.Time `json:"entry_date"`
	Memo        string    `json:"memo"`
}

// StaffPatch updates profile fields. Nil fields are left unchanged.
type StaffPatch struct {
	FacilityID  *string    `json:"facility_id,omitempty"`
	Name        *string    `json:"name,omitempty"`
	NameKana    *string    `json:"name_kana,omitempty"`
	Nationality *string    `json:"nationality,omitempty"`
	Sector      *string    `json:"sector,omitempty"`
	EntryDate   *time.Time `json:"entry_date,omitempty"`
	Memo        *string    `json:"memo,omitempty"`
}

// StaffStatus is a staff record with its derived compliance status.
type StaffStatus struct {
	Staff  storage.Staff     `json:"staff"`
	Status compliance.Status `json:"status"`
}

func (s *Service) validSector(v string) bool {
	return len(s.engine.Rules().Phases(rules.Sector(v))) > 0
}

func (s *Service) checkFacility(id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.store.GetFacility(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return invalid("facility %s does not exist", id)
		}
		return err
	}
	return nil
}

// CreateStaff registers a staff member. The residence expiry starts at one
// year after entry.
func (s *Service) CreateStaff(actor auth.Identity, in NewStaff) (storage.Staff, error) {
	if err := requireWrite(actor); err != nil {
		return storage.Staff{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return storage.Staff{}, invalid("name is required")
	}
	if !s.validSector(in.Sector) {
		return storage.Staff{}, invalid("unknown sector %q", in.Sector)
	}
	if in.EntryDate.IsZero() {
		return storage.Staff{}, invalid("entry date is required")
	}
	if err := s.checkFacility(in.FacilityID); err != nil {
		return storage.Staff{}, err
	}

	st, err := s.store.CreateStaff(storage.Staff{
		FacilityID:      in.FacilityID,
		Name:            in.Name,
		NameKana:        strings.TrimSpace(in.NameKana),
		Nationality:     strings.TrimSpace(in.Nationality),
		Sector:          in.Sector,
		EntryDate:       in.EntryDate,
		ResidenceExpiry: compliance.ResidenceExpiryFor(in.EntryDate),
		Status:          string(compliance.StatusActive),
		Memo:            in.Memo,
	})
	if err != nil {
		return storage.Staff{}, err
	}
	s.logActivity(actor, "create", "staff", st.ID, st.Name, nil, st)
	return st, nil
}

// UpdateStaff applies a profile patch. Status and residence expiry have
// their own operations.
func (s *Service) UpdateStaff(actor auth.Identity, id string, p StaffPatch) (storage.Staff, error) {
	if err := requireWrite(actor); err != nil {
		return storage.Staff{}, err
	}
	old, err := s.store.GetStaff(id)
	if err != nil {
		return storage.Staff{}, err
	}
	st := old
	if p.Name != nil {
		st.Name = strings.TrimSpace(*p.Name)
		if st.Name == "" {
			return storage.Staff{}, invalid("name is required")
		}
	}
	if p.NameKana != nil {
		st.NameKana = strings.TrimSpace(*p.NameKana)
	}
	if p.Nationality != nil {
		st.Nationality = strings.TrimSpace(*p.Nationality)
	}
	if p.Sector != nil {
		if !s.validSector(*p.Sector) {
			return storage.Staff{}, invalid("unknown sector %q", *p.Sector)
		}
		st.Sector = *p.Sector
	}
	if p.EntryDate != nil {
		if p.EntryDate.IsZero() {
			return storage.Staff{}, invalid("entry date is required")
		}
		st.EntryDate = *p.EntryDate
	}
	if p.FacilityID != nil {
		if err := s.checkFacility(*p.FacilityID); err != nil {
			return storage.Staff{}, err
		}
		st.FacilityID = *p.FacilityID
	}
	if p.Memo != nil {
		st.Memo = *p.Memo
	}

	if err := s.store.UpdateStaff(st); err != nil {
		return storage.Staff{}, err
	}
	s.logActivity(actor, "update", "staff", st.ID, st.Name, old, st)
	return s.store.GetStaff(id)
}

// ChangeStatus moves a staff member through active, exiting and archived.
// Archiving is the only form of deletion.
func (s *Service) ChangeStatus(actor auth.Identity, id, to string) (storage.Staff, error) {
	if err := requireWrite(actor); err != nil {
		return storage.Staff{}, err
	}
	target, ok := compliance.ParseEmploymentStatus(to)
	if !ok {
		return storage.Staff{}, invalid("unknown status %q", to)
	}
	st, err := s.store.GetStaff(id)
	if err != nil {
		return storage.Staff{}, err
	}
	from, _ := compliance.ParseEmploymentStatus(st.Status)
	if !compliance.CanTransition(from, target) {
		return storage.Staff{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, target)
	}
	if err := s.store.SetStaffStatus(id, string(target)); err != nil {
		return storage.Staff{}, err
	}
	action := "update"
	if target == compliance.StatusArchived {
		action = "delete"
	}
	s.logActivity(actor, action, "staff", st.ID, st.Name,
		map[string]string{"status": st.Status}, map[string]string{"status": string(target)})
	st.Status = string(target)
	return st, nil
}

// UpdateResidence records a new residence expiry. Moving the expiry later
// is a completed renewal, so the renewal checklist is cleared for the next
// cycle in the same transaction.
func (s *Service) UpdateResidence(actor auth.Identity, id string, newExpiry time.Time) (storage.ResidenceChange, error) {
	if err := requireWrite(actor); err != nil {
		return storage.ResidenceChange{}, err
	}
	if newExpiry.IsZero() {
		return storage.ResidenceChange{}, invalid("residence expiry is required")
	}
	st, err := s.store.GetStaff(id)
	if err != nil {
		return storage.ResidenceChange{}, err
	}

	var reset []string
	if newExpiry.After(st.ResidenceExpiry) {
		if ph, ok := s.engine.Rules().Phase(rules.Sector(st.Sector), rules.PhaseRenewal); ok {
			for _, it := range ph.Items {
				reset = append(reset, it.ID)
			}
		}
	}

	ch, err := s.store.UpdateResidenceExpiry(id, newExpiry, actor.UserID, reset)
	if err != nil {
		return storage.ResidenceChange{}, err
	}
	s.logActivity(actor, "update", "residence", st.ID, st.Name,
		map[string]string{"residence_expiry": compliance.FormatDate(ch.OldExpiry)},
		map[string]string{"residence_expiry": compliance.FormatDate(ch.NewExpiry)})
	return ch, nil
}

func (s *Service) ResidenceHistory(id string) ([]storage.ResidenceChange, error) {
	if _, err := s.store.GetStaff(id); err != nil {
		return nil, err
	}
	return s.store.ListResidenceHistory(id)
}

// Status evaluates one staff member.
func (s *Service) Status(id string) (StaffStatus, error) {
	st, err := s.store.GetStaff(id)
	if err != nil {
		return StaffStatus{}, err
	}
	items, err := s.store.GetChecklist(id)
	if err != nil {
		return StaffStatus{}, fmt.Errorf("loading checklist: %w", err)
	}
	return StaffStatus{Staff: st, Status: s.engine.Evaluate(engineStaff(st), checklistState(items))}, nil
}

// Roster evaluates every staff member, ordered by name.
func (s *Service) Roster(includeArchived bool) ([]StaffStatus, error) {
	staff, subjects, err := s.subjects(includeArchived)
	if err != nil {
		return nil, err
	}
	out := make([]StaffStatus, len(staff))
	for i := range staff {
		out[i] = StaffStatus{Staff: staff[i], Status: s.engine.Evaluate(subjects[i].Staff, subjects[i].Checklist)}
	}
	return out, nil
}

// Tasks returns the ranked facility-wide task list.
func (s *Service) Tasks() ([]compliance.Task, error) {
	_, subjects, err := s.subjects(false)
	if err != nil {
		return nil, err
	}
	return s.engine.Tasks(subjects), nil
}

func (s *Service) Dashboard() (compliance.Dashboard, error) {
	_, subjects, err := s.subjects(false)
	if err != nil {
		return compliance.Dashboard{}, err
	}
	return s.engine.Summarize(subjects, s.engine.Tasks(subjects)), nil
}

// Export writes the non-archived roster and its tasks as a workbook.
func (s *Service) Export(w io.Writer) error {
	staff, subjects, err := s.subjects(false)
	if err != nil {
		return err
	}
	facilities, err := s.store.ListFacilities()
	if err != nil {
		return fmt.Errorf("listing facilities: %w", err)
	}
	names := make(map[string]string, len(facilities))
	for _, f := range facilities {
		names[f.ID] = f.Name
	}

	rows := make([]export.Row, len(staff))
	for i, st := range staff {
		rows[i] = export.Row{
			Staff:       subjects[i].Staff,
			Nationality: st.Nationality,
			Facility:    names[st.FacilityID],
			Status:      s.engine.Evaluate(subjects[i].Staff, subjects[i].Checklist),
		}
	}
	return export.RosterWorkbook(w, rows, s.engine.Tasks(subjects))
}

func (s *Service) CreateFacility(actor auth.Identity, name string) (storage.Facility, error) {
	if err := requireWrite(actor); err != nil {
		return storage.Facility{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Facility{}, invalid("facility name is required")
	}
	f, err := s.store.CreateFacility(storage.Facility{Name: name})
	if err != nil {
		return storage.Facility{}, err
	}
	s.logActivity(actor, "create", "facility", f.ID, f.Name, nil, f)
	return f, nil
}

func (s *Service) Facilities() ([]storage.Facility, error) {
	return s.store.ListFacilities()
}
