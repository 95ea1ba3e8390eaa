package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sswtrack/sswtrack/internal/notify"
	"github.com/sswtrack/sswtrack/internal/storage"
)

type mockSender struct {
	mu     sync.Mutex
	sent   []notify.Message
	sendFn func(m notify.Message) error
}

func (m *mockSender) Send(_ context.Context, msg notify.Message) error {
	if m.sendFn != nil {
		if err := m.sendFn(msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type staticDigests []notify.Message

func (d staticDigests) Digests(time.Time) ([]notify.Message, error) { return d, nil }

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func countJobs(t *testing.T, s *storage.Store, status string) int {
	t.Helper()
	n, err := s.CountJobs(status)
	if err != nil {
		t.Fatalf("CountJobs(%s): %v", status, err)
	}
	return n
}

func TestWorker_SendEmail(t *testing.T) {
	store := openTestStore(t)
	sender := &mockSender{}
	w := NewWorker(store, sender, nil, 0)

	msg := notify.Message{To: []string{"a@example.com"}, Subject: "件名", HTML: "<p>x</p>"}
	if _, err := EnqueueEmail(store, msg); err != nil {
		t.Fatalf("EnqueueEmail: %v", err)
	}

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected a job to be processed")
	}
	if len(sender.sent) != 1 || sender.sent[0].Subject != "件名" || sender.sent[0].To[0] != "a@example.com" {
		t.Fatalf("sent = %+v", sender.sent)
	}
	if n := countJobs(t, store, "completed"); n != 1 {
		t.Fatalf("completed jobs = %d, want 1", n)
	}

	done, err = w.RunOnce(context.Background())
	if err != nil || done {
		t.Fatalf("empty queue: done=%v err=%v", done, err)
	}
}

func TestWorker_RetryOnFailure(t *testing.T) {
	store := openTestStore(t)
	sender := &mockSender{sendFn: func(notify.Message) error { return errors.New("smtp down") }}
	w := NewWorker(store, sender, nil, 0)

	if _, err := EnqueueEmail(store, notify.Message{To: []string{"a@example.com"}}); err != nil {
		t.Fatal(err)
	}
	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce: done=%v err=%v", done, err)
	}
	if n := countJobs(t, store, "pending"); n != 1 {
		t.Fatalf("pending jobs = %d, want 1 (scheduled for retry)", n)
	}

	// Backoff keeps the job out of reach for now.
	done, err = w.RunOnce(context.Background())
	if err != nil || done {
		t.Fatalf("job in backoff should not be claimed: done=%v err=%v", done, err)
	}
}

func TestWorker_BadPayloadFails(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockSender{}, nil, 0)

	if _, err := store.EnqueueJob(storage.Job{Type: TypeSendEmail, PayloadJSON: "{not json", MaxAttempts: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := countJobs(t, store, "failed"); n != 1 {
		t.Fatalf("failed jobs = %d, want 1", n)
	}
}

func TestWorker_DigestFanOut(t *testing.T) {
	store := openTestStore(t)
	sender := &mockSender{sendFn: func(m notify.Message) error {
		if m.To[0] == "bad@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}}
	digests := staticDigests{
		{To: []string{"owner@example.com"}, Subject: "d"},
		{To: []string{"admin@example.com"}, Subject: "d"},
		{To: []string{"bad@example.com"}, Subject: "d"},
	}
	w := NewWorker(store, sender, digests, 0)

	if _, err := EnqueueDigest(store); err != nil {
		t.Fatal(err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent %d digests, want 2", len(sender.sent))
	}
	if n := countJobs(t, store, "completed"); n != 1 {
		t.Fatalf("completed jobs = %d, want 1", n)
	}

	// The failed recipient is requeued on its own.
	sender.sendFn = nil
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 3 || sender.sent[2].To[0] != "bad@example.com" {
		t.Fatalf("sent = %+v", sender.sent)
	}
}

func TestWorker_DigestNotConfigured(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, notify.Disabled{}, staticDigests{{To: []string{"a@example.com"}}}, 0)

	if _, err := EnqueueDigest(store); err != nil {
		t.Fatal(err)
	}
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := countJobs(t, store, "failed"); n != 1 {
		t.Fatalf("failed jobs = %d, want 1", n)
	}
	if n := countJobs(t, store, "pending"); n != 0 {
		t.Fatalf("pending jobs = %d, want 0", n)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, &mockSender{}, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(finished)
	}()

	if _, err := EnqueueEmail(store, notify.Message{To: []string{"a@example.com"}}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for countJobs(t, store, "completed") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("job was not processed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
