package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type Facility struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID        string    `json:"id"`
	AuthID    string    `json:"auth_id,omitempty"` // empty until the invite is accepted
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`              // "owner", "admin", "staff"
	Status    string    `json:"status"`            // "pending", "active", "disabled"
	InvitedBy string    `json:"invited_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Staff struct {
	ID              string    `json:"id"`
	FacilityID      string    `json:"facility_id"`
	Name            string    `json:"name"`
	NameKana        string    `json:"name_kana"`
	Nationality     string    `json:"nationality"`
	Sector          string    `json:"sector"`
	EntryDate       time.Time `json:"entry_date"`
	ResidenceExpiry time.Time `json:"residence_expiry"`
	Status          string    `json:"status"` // "active", "exiting", "archived"
	VisitCareReady  bool      `json:"visit_care_ready"`
	Memo            string    `json:"memo"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ChecklistItem struct {
	StaffID     string    `json:"staff_id"`
	ItemID      string    `json:"item_id"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	CompletedBy string    `json:"completed_by,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ResidenceChange struct {
	ID        string    `json:"id"`
	StaffID   string    `json:"staff_id"`
	OldExpiry time.Time `json:"old_expiry"`
	NewExpiry time.Time `json:"new_expiry"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type Interview struct {
	ID                  string    `json:"id"`
	StaffID             string    `json:"staff_id"`
	Date                time.Time `json:"date"`
	Content             string    `json:"content"`
	NextActions         string    `json:"next_actions"`
	Type                string    `json:"type"`
	SupervisorInterview bool      `json:"supervisor_interview"`
	InterviewerID       string    `json:"interviewer_id"`
	CreatedAt           time.Time `json:"created_at"`
}

type Qualification struct {
	StaffID         string    `json:"staff_id"`
	QualificationID string    `json:"qualification_id"`
	Acquired        bool      `json:"acquired"`
	AcquiredDate    time.Time `json:"acquired_date,omitzero"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Activity struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Action     string    `json:"action"`    // "create", "update", "delete"
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	TargetName string    `json:"target_name"`
	OldValue   string    `json:"old_value"` // JSON
	NewValue   string    `json:"new_value"` // JSON
	CreatedAt  time.Time `json:"created_at"`
}

type Feedback struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type Job struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	PayloadJSON string    `json:"payload_json"`
	Status      string    `json:"status"` // "pending", "running", "completed", "failed"
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAfter    time.Time `json:"run_after"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}
