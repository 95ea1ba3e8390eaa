package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const staffColumns = `id, facility_id, name, name_kana, nationality, sector, entry_date,
	residence_expiry, status, visit_care_ready, memo, created_at, updated_at`

func scanStaff(sc scanner) (Staff, error) {
	var st Staff
	var entry, expiry, createdAt, updatedAt string
	err := sc.Scan(&st.ID, &st.FacilityID, &st.Name, &st.NameKana, &st.Nationality, &st.Sector,
		&entry, &expiry, &st.Status, &st.VisitCareReady, &st.Memo, &createdAt, &updatedAt)
	if err != nil {
		return Staff{}, err
	}
	if st.EntryDate, err = parseDate(entry); err != nil {
		return Staff{}, fmt.Errorf("parsing entry_date for staff %s: %w", st.ID, err)
	}
	if st.ResidenceExpiry, err = parseDate(expiry); err != nil {
		return Staff{}, fmt.Errorf("parsing residence_expiry for staff %s: %w", st.ID, err)
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return Staff{}, fmt.Errorf("parsing created_at for staff %s: %w", st.ID, err)
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Staff{}, fmt.Errorf("parsing updated_at for staff %s: %w", st.ID, err)
	}
	return st, nil
}

// CreateStaff inserts a staff record. A missing ID is generated.
func (s *Store) CreateStaff(st Staff) (Staff, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.Status == "" {
		st.Status = "active"
	}
	now := time.Now().UTC().Truncate(time.Second)
	st.CreatedAt, st.UpdatedAt = now, now
	_, err := s.conn().exec(`
		INSERT INTO staff (`+staffColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.FacilityID, st.Name, st.NameKana, st.Nationality, st.Sector,
		formatDate(st.EntryDate), formatDate(st.ResidenceExpiry), st.Status,
		boolInt(st.VisitCareReady), st.Memo, formatTime(now), formatTime(now),
	)
	if err != nil {
		return Staff{}, fmt.Errorf("inserting staff: %w", err)
	}
	return st, nil
}

func (s *Store) GetStaff(id string) (Staff, error) {
	st, err := scanStaff(s.conn().queryRow(`SELECT `+staffColumns+` FROM staff WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Staff{}, ErrNotFound
	}
	return st, err
}

// ListStaff returns staff ordered by name. Archived staff are included only
// when asked for.
func (s *Store) ListStaff(includeArchived bool) ([]Staff, error) {
	q := `SELECT ` + staffColumns + ` FROM staff`
	var args []any
	if !includeArchived {
		q += ` WHERE status <> ?`
		args = append(args, "archived")
	}
	q += ` ORDER BY name ASC, id ASC`

	rows, err := s.conn().query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Staff{}
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, st)
	}
	return results, rows.Err()
}

// UpdateStaff writes the editable profile fields. Residence expiry, status
// and the visit-care flag have dedicated operations.
func (s *Store) UpdateStaff(st Staff) error {
	res, err := s.conn().exec(`
		UPDATE staff SET facility_id = ?, name = ?, name_kana = ?, nationality = ?, sector = ?,
			entry_date = ?, memo = ?, updated_at = ?
		WHERE id = ?`,
		st.FacilityID, st.Name, st.NameKana, st.Nationality, st.Sector,
		formatDate(st.EntryDate), st.Memo, formatTime(time.Now()), st.ID,
	)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

func (s *Store) SetStaffStatus(id, status string) error {
	res, err := s.conn().exec(`UPDATE staff SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// UpdateResidenceExpiry appends a history row and then moves the live expiry,
// in one transaction. resetItems names checklist items cleared in the same
// transaction, used when a renewal starts a new cycle.
func (s *Store) UpdateResidenceExpiry(staffID string, newExpiry time.Time, changedBy string, resetItems []string) (ResidenceChange, error) {
	ch := ResidenceChange{
		ID:        uuid.NewString(),
		StaffID:   staffID,
		NewExpiry: newExpiry,
		ChangedBy: changedBy,
		ChangedAt: time.Now().UTC().Truncate(time.Second),
	}
	err := s.withTx(func(c conn) error {
		var old string
		err := c.queryRow(`SELECT residence_expiry FROM staff WHERE id = ?`, staffID).Scan(&old)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("reading current expiry: %w", err)
		}
		if ch.OldExpiry, err = parseDate(old); err != nil {
			return fmt.Errorf("parsing current expiry: %w", err)
		}

		if _, err := c.exec(`
			INSERT INTO residence_history (id, staff_id, old_expiry, new_expiry, changed_by, changed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ch.ID, staffID, old, formatDate(newExpiry), changedBy, formatTime(ch.ChangedAt),
		); err != nil {
			return fmt.Errorf("recording residence history: %w", err)
		}

		if _, err := c.exec(`UPDATE staff SET residence_expiry = ?, updated_at = ? WHERE id = ?`,
			formatDate(newExpiry), formatTime(ch.ChangedAt), staffID,
		); err != nil {
			return fmt.Errorf("updating residence expiry: %w", err)
		}
		return resetItemsTx(c, staffID, resetItems)
	})
	if err != nil {
		return ResidenceChange{}, err
	}
	return ch, nil
}

func (s *Store) ListResidenceHistory(staffID string) ([]ResidenceChange, error) {
	rows, err := s.conn().query(`
		SELECT id, staff_id, old_expiry, new_expiry, changed_by, changed_at
		FROM residence_history WHERE staff_id = ? ORDER BY changed_at DESC, id DESC`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []ResidenceChange{}
	for rows.Next() {
		var ch ResidenceChange
		var oldExp, newExp, changedAt string
		if err := rows.Scan(&ch.ID, &ch.StaffID, &oldExp, &newExp, &ch.ChangedBy, &changedAt); err != nil {
			return nil, err
		}
		if ch.OldExpiry, err = parseDate(oldExp); err != nil {
			return nil, fmt.Errorf("parsing old_expiry: %w", err)
		}
		if ch.NewExpiry, err = parseDate(newExp); err != nil {
			return nil, fmt.Errorf("parsing new_expiry: %w", err)
		}
		if ch.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, fmt.Errorf("parsing changed_at: %w", err)
		}
		results = append(results, ch)
	}
	return results, rows.Err()
}

// --- Facilities ---

func (s *Store) CreateFacility(f Facility) (Facility, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.conn().exec(`INSERT INTO facilities (id, name, created_at) VALUES (?, ?, ?)`,
		f.ID, f.Name, formatTime(f.CreatedAt))
	if err != nil {
		return Facility{}, fmt.Errorf("inserting facility: %w", err)
	}
	return f, nil
}

func (s *Store) GetFacility(id string) (Facility, error) {
	var f Facility
	var createdAt string
	err := s.conn().queryRow(`SELECT id, name, created_at FROM facilities WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &createdAt)
	if err == sql.ErrNoRows {
		return Facility{}, ErrNotFound
	}
	if err != nil {
		return Facility{}, err
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return Facility{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return f, nil
}

func (s *Store) ListFacilities() ([]Facility, error) {
	rows, err := s.conn().query(`SELECT id, name, created_at FROM facilities ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Facility{}
	for rows.Next() {
		var f Facility
		var createdAt string
		if err := rows.Scan(&f.ID, &f.Name, &createdAt); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}
