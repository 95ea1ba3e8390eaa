package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, auth_id, name, email, role, status, invited_by, created_at, updated_at`

func scanUser(sc scanner) (User, error) {
	var u User
	var authID sql.NullString
	var createdAt, updatedAt string
	if err := sc.Scan(&u.ID, &authID, &u.Name, &u.Email, &u.Role, &u.Status, &u.InvitedBy, &createdAt, &updatedAt); err != nil {
		return User{}, err
	}
	u.AuthID = authID.String
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return User{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return u, nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// CreateUser inserts a user. Invited users start "pending" with no auth ID.
func (s *Store) CreateUser(u User) (User, error) {
	return insertUser(s.conn(), u)
}

// CreateUserWithJob inserts a user and enqueues job in one transaction, so
// an invitation is never left without its email.
func (s *Store) CreateUserWithJob(u User, job Job) (User, error) {
	var out User
	err := s.withTx(func(c conn) error {
		var err error
		if out, err = insertUser(c, u); err != nil {
			return err
		}
		if _, err := insertJob(c, job); err != nil {
			return fmt.Errorf("enqueueing %s job: %w", job.Type, err)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

func insertUser(c conn, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = "pending"
	}
	now := time.Now().UTC().Truncate(time.Second)
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := c.exec(`
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, nullable(u.AuthID), u.Name, strings.ToLower(u.Email), u.Role, u.Status, u.InvitedBy,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	u.Email = strings.ToLower(u.Email)
	return u, nil
}

func (s *Store) getUserBy(column, value string) (User, error) {
	u, err := scanUser(s.conn().queryRow(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value))
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) GetUser(id string) (User, error) {
	return s.getUserBy("id", id)
}

// GetUserByAuthID looks a user up by the identity provider's subject.
func (s *Store) GetUserByAuthID(authID string) (User, error) {
	if authID == "" {
		return User{}, ErrNotFound
	}
	return s.getUserBy("auth_id", authID)
}

func (s *Store) GetUserByEmail(email string) (User, error) {
	return s.getUserBy("email", strings.ToLower(email))
}

// ActivateUser binds a pending user to an auth ID and marks them active.
func (s *Store) ActivateUser(id, authID string) error {
	res, err := s.conn().exec(`
		UPDATE users SET status = 'active', auth_id = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		nullable(authID), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// ListUsersByRole returns active users holding any of roles.
func (s *Store) ListUsersByRole(roles ...string) ([]User, error) {
	if len(roles) == 0 {
		return []User{}, nil
	}
	args := make([]any, 0, len(roles))
	for _, r := range roles {
		args = append(args, r)
	}
	placeholders := strings.Repeat(",?", len(roles)-1)
	rows, err := s.conn().query(`SELECT `+userColumns+` FROM users
		WHERE status = 'active' AND role IN (?`+placeholders+`) ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// --- Activity ---

func (s *Store) LogActivity(a Activity) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.conn().exec(`
		INSERT INTO activity_logs (id, user_id, user_name, action, target_type, target_id, target_name, old_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.UserName, a.Action, a.TargetType, a.TargetID, a.TargetName,
		a.OldValue, a.NewValue, formatTime(a.CreatedAt),
	)
	return err
}

// ListActivity returns log entries newest first.
func (s *Store) ListActivity(limit, offset int) ([]Activity, error) {
	rows, err := s.conn().query(`
		SELECT id, user_id, user_name, action, target_type, target_id, target_name, old_value, new_value, created_at
		FROM activity_logs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Activity{}
	for rows.Next() {
		var a Activity
		var createdAt string
		if err := rows.Scan(&a.ID, &a.UserID, &a.UserName, &a.Action, &a.TargetType, &a.TargetID,
			&a.TargetName, &a.OldValue, &a.NewValue, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- Feedback ---

func (s *Store) SaveFeedback(f Feedback) (Feedback, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Type == "" {
		f.Type = "general"
	}
	f.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.conn().exec(`
		INSERT INTO feedback (id, user_id, name, email, content, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Name, f.Email, f.Content, f.Type, formatTime(f.CreatedAt),
	)
	if err != nil {
		return Feedback{}, fmt.Errorf("inserting feedback: %w", err)
	}
	return f, nil
}
