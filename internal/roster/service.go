// Package roster is the service layer over storage and the compliance
// engine. It validates input, enforces roles, writes activity logs and
// queues notification email.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sswtrack/sswtrack/internal/auth"
	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/rules"
	"github.com/sswtrack/sswtrack/internal/storage"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrForbidden         = errors.New("permission denied")
	ErrPhaseLocked       = errors.New("phase is locked")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownItem       = errors.New("unknown checklist item")
	ErrUnknownPhase      = errors.New("unknown phase")
	ErrConflict          = errors.New("already exists")
	ErrAlreadyActive     = errors.New("invitation already accepted")
	ErrInviteNotPending  = errors.New("invitation is no longer valid")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Store is the persistence the service needs. *storage.Store implements it.
type Store interface {
	CreateFacility(f storage.Facility) (storage.Facility, error)
	GetFacility(id string) (storage.Facility, error)
	ListFacilities() ([]storage.Facility, error)

	CreateStaff(st storage.Staff) (storage.Staff, error)
	GetStaff(id string) (storage.Staff, error)
	ListStaff(includeArchived bool) ([]storage.Staff, error)
	UpdateStaff(st storage.Staff) error
	SetStaffStatus(id, status string) error
	UpdateResidenceExpiry(staffID string, newExpiry time.Time, changedBy string, resetItems []string) (storage.ResidenceChange, error)
	ListResidenceHistory(staffID string) ([]storage.ResidenceChange, error)

	GetChecklist(staffID string) ([]storage.ChecklistItem, error)
	GetAllChecklists() (map[string][]storage.ChecklistItem, error)
	SaveChecklist(staffID string, changes map[string]bool, by string) error

	AddInterview(iv storage.Interview) (storage.Interview, error)
	ListInterviews(staffID string) ([]storage.Interview, error)
	ListQualifications(staffID string) ([]storage.Qualification, error)
	SetQualification(q storage.Qualification, markVisitCare bool) error

	CreateUserWithJob(u storage.User, job storage.Job) (storage.User, error)
	GetUser(id string) (storage.User, error)
	GetUserByEmail(email string) (storage.User, error)
	ActivateUser(id, authID string) error
	ListUsersByRole(roles ...string) ([]storage.User, error)

	LogActivity(a storage.Activity) error
	ListActivity(limit, offset int) ([]storage.Activity, error)
	SaveFeedback(f storage.Feedback) (storage.Feedback, error)

	EnqueueJob(job storage.Job) (string, error)
}

// Options configures outbound email.
type Options struct {
	// AppURL is linked from invitation and digest email.
	AppURL string
	// OwnerAddress receives feedback notifications. Empty disables them.
	OwnerAddress string
}

type Service struct {
	store  Store
	engine *compliance.Engine
	opts   Options
	logger *slog.Logger
}

func New(store Store, engine *compliance.Engine, opts Options) *Service {
	return &Service{
		store:  store,
		engine: engine,
		opts:   opts,
		logger: slog.Default().With("component", "roster"),
	}
}

// Engine returns the compliance engine the service evaluates with.
func (s *Service) Engine() *compliance.Engine { return s.engine }

func requireWrite(actor auth.Identity) error {
	if !actor.Role.CanWrite() {
		return fmt.Errorf("%w: role %s is read-only", ErrForbidden, actor.Role)
	}
	return nil
}

// logActivity records a mutation. Failures are logged, not returned: the
// mutation has already committed.
func (s *Service) logActivity(actor auth.Identity, action, targetType, targetID, targetName string, oldValue, newValue any) {
	a := storage.Activity{
		UserID:     actor.UserID,
		UserName:   actor.Name,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		TargetName: targetName,
		OldValue:   encodeValue(oldValue),
		NewValue:   encodeValue(newValue),
	}
	if err := s.store.LogActivity(a); err != nil {
		s.logger.Warn("recording activity failed", "action", action, "target", targetID, "error", err)
	}
}

func encodeValue(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func engineStaff(st storage.Staff) compliance.Staff {
	status, _ := compliance.ParseEmploymentStatus(st.Status)
	return compliance.Staff{
		ID:              st.ID,
		Name:            st.Name,
		Sector:          rules.Sector(st.Sector),
		EntryDate:       st.EntryDate,
		ResidenceExpiry: st.ResidenceExpiry,
		Status:          status,
		VisitCareReady:  st.VisitCareReady,
	}
}

func checklistState(items []storage.ChecklistItem) compliance.Checklist {
	c := make(compliance.Checklist, len(items))
	for _, it := range items {
		c[it.ItemID] = compliance.ItemState{
			Completed:   it.Completed,
			CompletedAt: it.CompletedAt,
			CompletedBy: it.CompletedBy,
		}
	}
	return c
}

// subjects loads every staff record with its checklist in two queries.
func (s *Service) subjects(includeArchived bool) ([]storage.Staff, []compliance.Subject, error) {
	staff, err := s.store.ListStaff(includeArchived)
	if err != nil {
		return nil, nil, fmt.Errorf("listing staff: %w", err)
	}
	lists, err := s.store.GetAllChecklists()
	if err != nil {
		return nil, nil, fmt.Errorf("loading checklists: %w", err)
	}
	subjects := make([]compliance.Subject, len(staff))
	for i, st := range staff {
		subjects[i] = compliance.Subject{Staff: engineStaff(st), Checklist: checklistState(lists[st.ID])}
	}
	return staff, subjects, nil
}
