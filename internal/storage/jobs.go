package storage

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultMaxAttempts = 3

// EnqueueJob adds a pending job. A missing ID is generated and returned.
func (s *Store) EnqueueJob(job Job) (string, error) {
	return insertJob(s.conn(), job)
}

func insertJob(c conn, job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := formatTime(time.Now())
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = formatTime(job.RunAfter)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}
	_, err := c.exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// ClaimNextJob marks the oldest runnable job of the given types as running
// and returns it. It returns nil when nothing is runnable.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := formatTime(time.Now())
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	var claimed *Job
	err := s.withTx(func(c conn) error {
		var j Job
		var runAfter, createdAt, updatedAt string
		var lastError sql.NullString
		err := c.queryRow(query, args...).Scan(
			&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
			&runAfter, &createdAt, &updatedAt, &lastError,
		)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("selecting next job: %w", err)
		}

		res, err := c.exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
		if err != nil {
			return fmt.Errorf("updating job status: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking updated job rows: %w", err)
		}
		if n != 1 {
			return nil
		}

		j.Status = "running"
		j.LastError = lastError.String
		if j.RunAfter, err = parseTime(runAfter); err != nil {
			return fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
		}
		if j.CreatedAt, err = parseTime(createdAt); err != nil {
			return fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
		}
		if j.UpdatedAt, err = parseTime(now); err != nil {
			return fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
		}
		claimed = &j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) CompleteJob(id string) error {
	res, err := s.conn().exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// FailJob records a failed attempt. The job is retried after 2^attempts
// seconds until max_attempts is reached, then marked failed.
func (s *Store) FailJob(id string, errMsg string) error {
	return s.withTx(func(c conn) error {
		var attempts, maxAttempts int
		err := c.queryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		attempts++

		if attempts >= maxAttempts {
			_, err = c.exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
				attempts, errMsg, formatTime(now), id)
		} else {
			backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
			_, err = c.exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
				attempts, errMsg, formatTime(now.Add(backoff)), formatTime(now), id)
		}
		return err
	})
}

// CountJobs returns the number of jobs in the given status.
func (s *Store) CountJobs(status string) (int, error) {
	var n int
	err := s.conn().queryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, status).Scan(&n)
	return n, err
}
