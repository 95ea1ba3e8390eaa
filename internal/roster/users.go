package roster

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sswtrack/sswtrack/internal/auth"
	"github.com/sswtrack/sswtrack/internal/notify"
	"github.com/sswtrack/sswtrack/internal/outbox"
	"github.com/sswtrack/sswtrack/internal/storage"
)

const (
	maxFeedbackContent = 5000
	maxFeedbackName    = 100
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type NewInvite struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Invite creates a pending user and queues the invitation email in the same
// transaction. Only an owner may invite another owner.
func (s *Service) Invite(actor auth.Identity, in NewInvite) (storage.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Email == "" || in.Name == "" {
		return storage.User{}, invalid("email and name are required")
	}
	if !emailPattern.MatchString(in.Email) {
		return storage.User{}, invalid("invalid email address")
	}
	if in.Role == "" {
		in.Role = string(auth.RoleStaff)
	}
	role, ok := auth.ParseRole(in.Role)
	if !ok {
		return storage.User{}, invalid("unknown role %q", in.Role)
	}
	if !auth.CanInvite(actor.Role, role) {
		return storage.User{}, fmt.Errorf("%w: %s cannot invite %s", ErrForbidden, actor.Role, role)
	}
	if _, err := s.store.GetUserByEmail(in.Email); err == nil {
		return storage.User{}, fmt.Errorf("%w: %s is already registered", ErrConflict, in.Email)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, err
	}

	msg, err := notify.InviteEmail(notify.Invite{
		To:          in.Email,
		Name:        in.Name,
		InviterName: actor.Name,
		RoleLabel:   role.Label(),
		AppURL:      s.opts.AppURL,
	})
	if err != nil {
		return storage.User{}, err
	}
	job, err := outbox.EmailJob(msg)
	if err != nil {
		return storage.User{}, err
	}

	u, err := s.store.CreateUserWithJob(storage.User{
		Name:      in.Name,
		Email:     in.Email,
		Role:      string(role),
		InvitedBy: actor.UserID,
	}, job)
	if err != nil {
		return storage.User{}, err
	}
	s.logActivity(actor, "create", "user", u.ID, u.Name, nil, map[string]string{"email": u.Email, "role": u.Role})
	return u, nil
}

// VerifyInvite checks that invitation id can still be accepted.
func (s *Service) VerifyInvite(id string) (storage.User, error) {
	u, err := s.store.GetUser(id)
	if err != nil {
		return storage.User{}, err
	}
	switch u.Status {
	case "pending":
		return u, nil
	case "active":
		return u, ErrAlreadyActive
	}
	return u, ErrInviteNotPending
}

// AcceptInvite binds the pending user to the provider account authID.
func (s *Service) AcceptInvite(id, authID string) (storage.User, error) {
	if authID == "" {
		return storage.User{}, invalid("account id is required")
	}
	u, err := s.VerifyInvite(id)
	if err != nil {
		return u, err
	}
	if err := s.store.ActivateUser(id, authID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return u, ErrInviteNotPending
		}
		return u, err
	}
	s.logActivity(auth.Identity{UserID: u.ID, Name: u.Name}, "update", "user", u.ID, u.Name,
		map[string]string{"status": "pending"}, map[string]string{"status": "active"})
	return s.store.GetUser(id)
}

type NewFeedback struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Feedback stores a comment and, when an owner address is configured,
// queues a notification to it.
func (s *Service) Feedback(actor auth.Identity, in NewFeedback) (storage.Feedback, error) {
	if strings.TrimSpace(in.Content) == "" {
		return storage.Feedback{}, invalid("content is required")
	}
	if utf8.RuneCountInString(in.Content) > maxFeedbackContent {
		return storage.Feedback{}, invalid("content must be at most %d characters", maxFeedbackContent)
	}
	if utf8.RuneCountInString(in.Name) > maxFeedbackName {
		return storage.Feedback{}, invalid("name must be at most %d characters", maxFeedbackName)
	}
	if in.Email != "" && !emailPattern.MatchString(in.Email) {
		return storage.Feedback{}, invalid("invalid email address")
	}

	f, err := s.store.SaveFeedback(storage.Feedback{
		UserID:  actor.UserID,
		Name:    in.Name,
		Email:   in.Email,
		Content: in.Content,
		Type:    in.Type,
	})
	if err != nil {
		return storage.Feedback{}, err
	}

	if s.opts.OwnerAddress == "" {
		s.logger.Debug("no owner address configured, feedback not forwarded", "feedback_id", f.ID)
		return f, nil
	}
	msg, err := notify.FeedbackEmail(notify.Feedback{
		To:      s.opts.OwnerAddress,
		Name:    in.Name,
		Email:   in.Email,
		Content: in.Content,
		SentAt:  f.CreatedAt,
	})
	if err != nil {
		return f, err
	}
	if _, err := outbox.EnqueueEmail(s.store, msg); err != nil {
		return f, fmt.Errorf("queueing feedback email: %w", err)
	}
	return f, nil
}

// QueueDigest schedules a reminder digest to every active owner and admin.
func (s *Service) QueueDigest(actor auth.Identity) (string, error) {
	if err := requireWrite(actor); err != nil {
		return "", err
	}
	return outbox.EnqueueDigest(s.store)
}

// Digests builds one reminder per active owner or admin. Nothing is sent
// when there are no open tasks.
func (s *Service) Digests(now time.Time) ([]notify.Message, error) {
	_, subjects, err := s.subjects(false)
	if err != nil {
		return nil, err
	}
	tasks := s.engine.Tasks(subjects)
	if len(tasks) == 0 {
		return nil, nil
	}
	dash := s.engine.Summarize(subjects, tasks)

	users, err := s.store.ListUsersByRole(string(auth.RoleOwner), string(auth.RoleAdmin))
	if err != nil {
		return nil, fmt.Errorf("listing recipients: %w", err)
	}
	msgs := make([]notify.Message, 0, len(users))
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		m, err := notify.DigestEmail(notify.Digest{
			To:        u.Email,
			Name:      u.Name,
			Tasks:     tasks,
			Dashboard: dash,
			AppURL:    s.opts.AppURL,
			At:        now,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Activity returns the audit log, newest first.
func (s *Service) Activity(limit, offset int) ([]storage.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListActivity(limit, offset)
}

var _ outbox.DigestSource = (*Service)(nil)

