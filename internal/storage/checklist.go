package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

func scanChecklistItem(sc scanner) (ChecklistItem, error) {
	var it ChecklistItem
	var completedAt, updatedAt string
	if err := sc.Scan(&it.StaffID, &it.ItemID, &it.Completed, &completedAt, &it.CompletedBy, &updatedAt); err != nil {
		return ChecklistItem{}, err
	}
	var err error
	if it.CompletedAt, err = parseTime(completedAt); err != nil {
		return ChecklistItem{}, fmt.Errorf("parsing completed_at: %w", err)
	}
	if it.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ChecklistItem{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return it, nil
}

// GetChecklist returns the stored item states of one staff member. Items
// never toggled have no row.
func (s *Store) GetChecklist(staffID string) ([]ChecklistItem, error) {
	rows, err := s.conn().query(`
		SELECT staff_id, item_id, completed, completed_at, completed_by, updated_at
		FROM checklist_items WHERE staff_id = ? ORDER BY item_id`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []ChecklistItem{}
	for rows.Next() {
		it, err := scanChecklistItem(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, it)
	}
	return results, rows.Err()
}

// GetAllChecklists returns every stored item state keyed by staff ID.
func (s *Store) GetAllChecklists() (map[string][]ChecklistItem, error) {
	rows, err := s.conn().query(`
		SELECT staff_id, item_id, completed, completed_at, completed_by, updated_at
		FROM checklist_items ORDER BY staff_id, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[string][]ChecklistItem)
	for rows.Next() {
		it, err := scanChecklistItem(rows)
		if err != nil {
			return nil, err
		}
		results[it.StaffID] = append(results[it.StaffID], it)
	}
	return results, rows.Err()
}

// SaveChecklist upserts every change in one transaction. Either all rows are
// written or none are.
func (s *Store) SaveChecklist(staffID string, changes map[string]bool, by string) error {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := formatTime(time.Now())
	return s.withTx(func(c conn) error {
		for _, id := range ids {
			completedAt, completedBy := "", ""
			if changes[id] {
				completedAt, completedBy = now, by
			}
			if _, err := c.exec(`
				INSERT INTO checklist_items (staff_id, item_id, completed, completed_at, completed_by, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(staff_id, item_id) DO UPDATE SET
					completed = excluded.completed,
					completed_at = excluded.completed_at,
					completed_by = excluded.completed_by,
					updated_at = excluded.updated_at`,
				staffID, id, boolInt(changes[id]), completedAt, completedBy, now,
			); err != nil {
				return fmt.Errorf("saving checklist item %s: %w", id, err)
			}
		}
		return nil
	})
}

// ResetChecklistItems clears the given items of one staff member.
func (s *Store) ResetChecklistItems(staffID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return s.withTx(func(c conn) error {
		return resetItemsTx(c, staffID, itemIDs)
	})
}

func resetItemsTx(c conn, staffID string, itemIDs []string) error {
	now := formatTime(time.Now())
	for _, id := range itemIDs {
		if _, err := c.exec(`
			UPDATE checklist_items SET completed = 0, completed_at = '', completed_by = '', updated_at = ?
			WHERE staff_id = ? AND item_id = ?`, now, staffID, id,
		); err != nil {
			return fmt.Errorf("resetting checklist item %s: %w", id, err)
		}
	}
	return nil
}

// --- Interviews ---

func (s *Store) AddInterview(iv Interview) (Interview, error) {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if iv.Type == "" {
		iv.Type = "regular"
	}
	iv.CreatedAt = time.Now().UTC().Truncate(time.Second)
	_, err := s.conn().exec(`
		INSERT INTO interviews (id, staff_id, interview_date, content, next_actions, type, supervisor_interview, interviewer_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		iv.ID, iv.StaffID, formatDate(iv.Date), iv.Content, iv.NextActions, iv.Type,
		boolInt(iv.SupervisorInterview), iv.InterviewerID, formatTime(iv.CreatedAt),
	)
	if err != nil {
		return Interview{}, fmt.Errorf("inserting interview: %w", err)
	}
	return iv, nil
}

// ListInterviews returns the interviews of one staff member, newest first.
func (s *Store) ListInterviews(staffID string) ([]Interview, error) {
	rows, err := s.conn().query(`
		SELECT id, staff_id, interview_date, content, next_actions, type, supervisor_interview, interviewer_id, created_at
		FROM interviews WHERE staff_id = ? ORDER BY interview_date DESC, created_at DESC`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Interview{}
	for rows.Next() {
		var iv Interview
		var date, createdAt string
		if err := rows.Scan(&iv.ID, &iv.StaffID, &date, &iv.Content, &iv.NextActions, &iv.Type,
			&iv.SupervisorInterview, &iv.InterviewerID, &createdAt); err != nil {
			return nil, err
		}
		if iv.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("parsing interview_date: %w", err)
		}
		if iv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, iv)
	}
	return results, rows.Err()
}

// --- Qualifications ---

func (s *Store) ListQualifications(staffID string) ([]Qualification, error) {
	rows, err := s.conn().query(`
		SELECT staff_id, qualification_id, acquired, acquired_date, updated_at
		FROM qualifications WHERE staff_id = ? ORDER BY qualification_id`, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Qualification{}
	for rows.Next() {
		var q Qualification
		var acquiredDate, updatedAt string
		if err := rows.Scan(&q.StaffID, &q.QualificationID, &q.Acquired, &acquiredDate, &updatedAt); err != nil {
			return nil, err
		}
		if q.AcquiredDate, err = parseDate(acquiredDate); err != nil {
			return nil, fmt.Errorf("parsing acquired_date: %w", err)
		}
		if q.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, q)
	}
	return results, rows.Err()
}

// SetQualification upserts one qualification. When markVisitCare is set the
// staff record is flagged visit-care ready in the same transaction.
func (s *Store) SetQualification(q Qualification, markVisitCare bool) error {
	now := formatTime(time.Now())
	return s.withTx(func(c conn) error {
		if _, err := c.exec(`
			INSERT INTO qualifications (staff_id, qualification_id, acquired, acquired_date, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(staff_id, qualification_id) DO UPDATE SET
				acquired = excluded.acquired,
				acquired_date = excluded.acquired_date,
				updated_at = excluded.updated_at`,
			q.StaffID, q.QualificationID, boolInt(q.Acquired), formatDate(q.AcquiredDate), now,
		); err != nil {
			return fmt.Errorf("saving qualification %s: %w", q.QualificationID, err)
		}
		if !markVisitCare {
			return nil
		}
		res, err := c.exec(`UPDATE staff SET visit_care_ready = 1, updated_at = ? WHERE id = ?`, now, q.StaffID)
		if err != nil {
			return fmt.Errorf("flagging visit care: %w", err)
		}
		return checkAffected(res)
	})
}
