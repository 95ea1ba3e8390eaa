// Package outbox delivers queued email. Jobs live in the storage job queue
// so sends survive restarts and failed deliveries are retried with backoff.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sswtrack/sswtrack/internal/notify"
	"github.com/sswtrack/sswtrack/internal/storage"
)

const (
	TypeSendEmail      = "send_email"
	TypeReminderDigest = "reminder_digest"
)

// digestConcurrency bounds parallel sends within one digest job.
const digestConcurrency = 4

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(job storage.Job) (string, error)
}

// JobStore abstracts the job queue operations.
type JobStore interface {
	Enqueuer
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// DigestSource builds one reminder message per recipient.
type DigestSource interface {
	Digests(now time.Time) ([]notify.Message, error)
}

// EmailJob builds the send_email job for m without queueing it.
func EmailJob(m notify.Message) (storage.Job, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return storage.Job{}, fmt.Errorf("encoding email: %w", err)
	}
	return storage.Job{Type: TypeSendEmail, PayloadJSON: string(payload)}, nil
}

// EnqueueEmail queues m for delivery.
func EnqueueEmail(store Enqueuer, m notify.Message) (string, error) {
	job, err := EmailJob(m)
	if err != nil {
		return "", err
	}
	return store.EnqueueJob(job)
}

// EnqueueDigest queues a reminder digest run.
func EnqueueDigest(store Enqueuer) (string, error) {
	return store.EnqueueJob(storage.Job{Type: TypeReminderDigest, PayloadJSON: "{}", MaxAttempts: 1})
}

// Worker processes outbox jobs.
type Worker struct {
	store   JobStore
	sender  notify.Sender
	digests DigestSource
	poll    time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 2s.
// digests may be nil, in which case digest jobs fail.
func NewWorker(store JobStore, sender notify.Sender, digests DigestSource, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		store:   store,
		sender:  sender,
		digests: digests,
		poll:    pollInterval,
		now:     time.Now,
		logger:  slog.Default().With("component", "outbox"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{TypeSendEmail, TypeReminderDigest})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.process(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "type", job.Type, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Debug("job completed", "job_id", job.ID, "type", job.Type)
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job) error {
	switch job.Type {
	case TypeSendEmail:
		var m notify.Message
		if err := json.Unmarshal([]byte(job.PayloadJSON), &m); err != nil {
			return fmt.Errorf("parsing payload: %w", err)
		}
		return w.sender.Send(ctx, m)
	case TypeReminderDigest:
		return w.sendDigests(ctx)
	}
	return fmt.Errorf("unknown job type %q", job.Type)
}

// sendDigests sends every digest concurrently. Recipients whose send fails
// are requeued as individual send_email jobs.
func (w *Worker) sendDigests(ctx context.Context) error {
	if w.digests == nil {
		return errors.New("no digest source configured")
	}
	msgs, err := w.digests.Digests(w.now())
	if err != nil {
		return fmt.Errorf("building digests: %w", err)
	}

	var (
		mu     sync.Mutex
		failed []notify.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(digestConcurrency)
	for _, m := range msgs {
		g.Go(func() error {
			if err := w.sender.Send(gctx, m); err != nil {
				if errors.Is(err, notify.ErrNotConfigured) {
					return err
				}
				w.logger.Warn("digest send failed, requeueing", "to", m.To, "error", err)
				mu.Lock()
				failed = append(failed, m)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, m := range failed {
		if _, err := EnqueueEmail(w.store, m); err != nil {
			return fmt.Errorf("requeueing digest for %v: %w", m.To, err)
		}
	}
	w.logger.Info("reminder digests sent", "recipients", len(msgs), "requeued", len(failed))
	return nil
}
