package cron_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/cron"
	"github.com/xraph/courier/id"
)

// recordingSubmitter records submitted tasks and signals each call.
type recordingSubmitter struct {
	mu     sync.Mutex
	tasks  []string
	kwargs []courier.Kwargs
	err    error
	fired  chan struct{}
}

func newRecordingSubmitter() *recordingSubmitter {
	return &recordingSubmitter{fired: make(chan struct{}, 16)}
}

func (r *recordingSubmitter) submit(_ context.Context, taskName string, kwargs courier.Kwargs) (id.JobID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, taskName)
	r.kwargs = append(r.kwargs, kwargs)
	r.fired <- struct{}{}
	if r.err != nil {
		return id.Nil, r.err
	}
	return id.NewJobID(), nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// recordingEmitter records EmitCronFired calls.
type recordingEmitter struct {
	mu      sync.Mutex
	entries []string
	jobIDs  []id.JobID
}

func (r *recordingEmitter) EmitCronFired(_ context.Context, entryName string, jobID id.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entryName)
	r.jobIDs = append(r.jobIDs, jobID)
}

func waitFired(t *testing.T, r *recordingSubmitter) {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cron fire")
	}
}

func TestAddRejectsInvalidSchedule(t *testing.T) {
	s := cron.NewScheduler(newRecordingSubmitter().submit, nil)
	if err := s.Add("bad", "not a cron expr", "orders.refresh", nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestAddRejectsDuplicateName(t *testing.T) {
	s := cron.NewScheduler(newRecordingSubmitter().submit, nil)
	if err := s.Add("nightly", "@daily", "orders.refresh", nil); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := s.Add("nightly", "@hourly", "orders.refresh", nil); err == nil {
		t.Fatal("expected error for duplicate entry name")
	}
}

func TestAddSetsNextRun(t *testing.T) {
	s := cron.NewScheduler(newRecordingSubmitter().submit, nil)
	if err := s.Add("nightly", "@daily", "orders.refresh", courier.Kwargs{"full": true}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Name != "nightly" || e.Task != "orders.refresh" {
		t.Fatalf("entry = %q/%q, want nightly/orders.refresh", e.Name, e.Task)
	}
	if !e.Enabled {
		t.Error("new entry should be enabled")
	}
	if e.NextRunAt == nil || !e.NextRunAt.After(time.Now().UTC().Add(-time.Second)) {
		t.Errorf("NextRunAt = %v, want a future time", e.NextRunAt)
	}
	if e.ID.IsNil() {
		t.Error("entry should get a cron ID")
	}
}

func TestSchedulerFiresDueEntry(t *testing.T) {
	sub := newRecordingSubmitter()
	em := &recordingEmitter{}
	s := cron.NewScheduler(sub.submit, em, cron.WithTickInterval(5*time.Millisecond))

	if err := s.Add("fast", "@every 10ms", "orders.refresh", courier.Kwargs{"full": true}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	waitFired(t, sub)

	sub.mu.Lock()
	task := sub.tasks[0]
	kw := sub.kwargs[0]
	sub.mu.Unlock()
	if task != "orders.refresh" {
		t.Fatalf("submitted task = %q, want %q", task, "orders.refresh")
	}
	if kw["full"] != true {
		t.Fatalf("submitted kwargs = %v, want full=true", kw)
	}

	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.entries) == 0 || em.entries[0] != "fast" {
		t.Fatalf("emitter entries = %v, want [fast ...]", em.entries)
	}
	if em.jobIDs[0].IsNil() {
		t.Fatal("emitted job ID should not be nil")
	}
}

func TestSchedulerAdvancesNextRun(t *testing.T) {
	sub := newRecordingSubmitter()
	s := cron.NewScheduler(sub.submit, nil, cron.WithTickInterval(5*time.Millisecond))

	if err := s.Add("fast", "@every 10ms", "orders.refresh", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	waitFired(t, sub)
	waitFired(t, sub)

	e := s.Entries()[0]
	if e.LastRunAt == nil {
		t.Fatal("LastRunAt not set after firing")
	}
	if e.NextRunAt == nil || !e.NextRunAt.After(*e.LastRunAt) {
		t.Fatalf("NextRunAt = %v, want after LastRunAt %v", e.NextRunAt, e.LastRunAt)
	}
}

func TestDisabledEntryDoesNotFire(t *testing.T) {
	sub := newRecordingSubmitter()
	s := cron.NewScheduler(sub.submit, nil, cron.WithTickInterval(5*time.Millisecond))

	if err := s.Add("fast", "@every 10ms", "orders.refresh", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Disable("fast")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	time.Sleep(60 * time.Millisecond)
	if got := sub.count(); got != 0 {
		t.Fatalf("disabled entry fired %d times", got)
	}

	s.Enable("fast")
	waitFired(t, sub)
}

func TestRemoveEntry(t *testing.T) {
	sub := newRecordingSubmitter()
	s := cron.NewScheduler(sub.submit, nil)

	if err := s.Add("gone", "@daily", "orders.refresh", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Remove("gone")
	if got := len(s.Entries()); got != 0 {
		t.Fatalf("Entries() = %d after Remove, want 0", got)
	}
	// Removing again is a no-op.
	s.Remove("gone")
}

func TestSubmitErrorDoesNotEmit(t *testing.T) {
	sub := newRecordingSubmitter()
	sub.err = errors.New("queue unavailable")
	em := &recordingEmitter{}
	s := cron.NewScheduler(sub.submit, em, cron.WithTickInterval(5*time.Millisecond))

	if err := s.Add("failing", "@every 10ms", "orders.refresh", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	waitFired(t, sub)

	em.mu.Lock()
	defer em.mu.Unlock()
	if len(em.entries) != 0 {
		t.Fatalf("emitter called for failed submission: %v", em.entries)
	}
}

func TestStopIsIdempotentBeforeStart(t *testing.T) {
	s := cron.NewScheduler(newRecordingSubmitter().submit, nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}
