package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
)

// SubmitFunc is the callback the scheduler uses to submit tasks.
// This breaks the import cycle: the engine provides the implementation.
type SubmitFunc func(ctx context.Context, taskName string, kwargs courier.Kwargs) (id.JobID, error)

// Emitter emits cron lifecycle events.
// hook.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, jobID id.JobID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler submits registered entries on a tick loop.
type Scheduler struct {
	submit  SubmitFunc
	emitter Emitter
	logger  *slog.Logger

	tickInterval time.Duration

	mu      sync.RWMutex
	entries map[string]*Entry
	running bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler that submits through the given
// function. The emitter may be nil.
func NewScheduler(submit SubmitFunc, emitter Emitter, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		submit:       submit,
		emitter:      emitter,
		logger:       slog.Default(),
		tickInterval: time.Second,
		entries:      make(map[string]*Entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a periodic entry. The schedule is parsed eagerly so an
// invalid expression is rejected here, not at fire time. The entry
// starts enabled with its first run at the schedule's next occurrence.
func (s *Scheduler) Add(name, schedule, taskName string, kwargs courier.Kwargs) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return fmt.Errorf("courier/cron: parse schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("courier/cron: entry %q already registered", name)
	}

	next := sched.Next(time.Now().UTC())
	s.entries[name] = &Entry{
		ID:        id.NewCronID(),
		Name:      name,
		Schedule:  schedule,
		Task:      taskName,
		Kwargs:    kwargs.Clone(),
		Enabled:   true,
		NextRunAt: &next,
		sched:     sched,
	}
	return nil
}

// Remove deletes an entry by name. Removing an unknown name is a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// Enable marks an entry as firing again and recomputes its next run.
func (s *Scheduler) Enable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok && !e.Enabled {
		e.Enabled = true
		next := e.sched.Next(time.Now().UTC())
		e.NextRunAt = &next
	}
}

// Disable stops an entry from firing without removing it.
func (s *Scheduler) Disable(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.Enabled = false
	}
}

// Entries returns a snapshot of all registered entries.
func (s *Scheduler) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out
}

// Start launches the tick goroutine. It returns immediately.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true

	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine
// to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

// tickLoop fires on each tick interval and processes due entries.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	now := time.Now().UTC()

	s.mu.Lock()
	var due []*Entry
	for _, e := range s.entries {
		if !e.Enabled {
			continue
		}
		if e.NextRunAt == nil || e.NextRunAt.After(now) {
			continue
		}
		// Advance before firing so a failing submission does not retry
		// on every tick.
		e.LastRunAt = &now
		next := e.sched.Next(now)
		e.NextRunAt = &next
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fire(e)
	}
}

// fire submits one due entry. Task, Kwargs, and Name are immutable
// after Add, so reading them outside the lock is safe.
func (s *Scheduler) fire(e *Entry) {
	ctx := context.Background()

	jobID, err := s.submit(ctx, e.Task, e.Kwargs)
	if err != nil {
		s.logger.Error("cron submit error",
			slog.String("entry", e.Name),
			slog.String("task", e.Task),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, e.Name, jobID)
	}

	s.logger.Info("cron fired",
		slog.String("entry", e.Name),
		slog.String("task", e.Task),
		slog.String("job_id", jobID.String()),
	)
}
