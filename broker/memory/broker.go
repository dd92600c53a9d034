// Package memory provides a fully in-process broker. Safe for concurrent
// use. Intended for unit testing and development.
//
// Messages round-trip through a codec even though they never leave the
// process, so payloads degrade exactly the way they would across a real
// transport.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/backoff"
	"github.com/xraph/courier/broker"
	"github.com/xraph/courier/id"
)

// Ensure Broker implements both broker contracts at compile time.
var (
	_ broker.Broker   = (*Broker)(nil)
	_ broker.Consumer = (*Broker)(nil)
)

// entry is one undelivered message, held in its encoded form.
type entry struct {
	data       []byte
	priority   int
	runAt      time.Time
	enqueuedAt time.Time
	attempts   int
}

// Broker is an in-memory job queue that delivers submitted messages to a
// dispatcher from its own polling goroutines.
type Broker struct {
	codec         broker.Codec
	pollInterval  time.Duration
	concurrency   int
	maxDeliveries int
	retryBackoff  backoff.Strategy
	logger        *slog.Logger

	mu      sync.Mutex
	pending []*entry
	dead    []*broker.Message
	closed  bool
	running bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Broker.
type Option func(*Broker)

// WithCodec sets the codec messages round-trip through. Defaults to JSON.
func WithCodec(c broker.Codec) Option {
	return func(b *Broker) { b.codec = c }
}

// WithPollInterval sets how often delivery goroutines poll for due
// messages.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) { b.pollInterval = d }
}

// WithConcurrency sets the number of delivery goroutines.
func WithConcurrency(n int) Option {
	return func(b *Broker) { b.concurrency = n }
}

// WithMaxDeliveries sets how many times a message is handed to the
// dispatcher before being dropped. The default of 1 means failed
// dispatches are not redelivered.
func WithMaxDeliveries(n int) Option {
	return func(b *Broker) { b.maxDeliveries = n }
}

// WithRetryBackoff sets the delay strategy between redeliveries.
func WithRetryBackoff(s backoff.Strategy) Option {
	return func(b *Broker) { b.retryBackoff = s }
}

// WithLogger sets the broker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// New returns a new empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		codec:         &broker.JSONCodec{},
		pollInterval:  10 * time.Millisecond,
		concurrency:   1,
		maxDeliveries: 1,
		retryBackoff:  backoff.DefaultStrategy(),
		logger:        slog.Default(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ──────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────

// Submit enqueues a message for delivery as soon as possible.
func (b *Broker) Submit(ctx context.Context, msg *broker.Message) (id.JobID, error) {
	return b.enqueue(ctx, time.Time{}, msg)
}

// ScheduleAt enqueues a message for delivery at the given time.
func (b *Broker) ScheduleAt(ctx context.Context, at time.Time, msg *broker.Message) (id.JobID, error) {
	return b.enqueue(ctx, at, msg)
}

// ScheduleIn enqueues a message for delivery after the given delay.
func (b *Broker) ScheduleIn(ctx context.Context, delay time.Duration, msg *broker.Message) (id.JobID, error) {
	return b.enqueue(ctx, time.Now().UTC().Add(delay), msg)
}

func (b *Broker) enqueue(_ context.Context, runAt time.Time, msg *broker.Message) (id.JobID, error) {
	jobID := id.NewJobID()
	now := time.Now().UTC()

	cp := *msg
	cp.ID = jobID
	cp.EnqueuedAt = now
	cp.RunAt = runAt

	data, err := b.codec.Encode(&cp)
	if err != nil {
		return id.Nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return id.Nil, courier.ErrBrokerClosed
	}
	b.pending = append(b.pending, &entry{
		data:       data,
		priority:   cp.Priority,
		runAt:      runAt,
		enqueuedAt: now,
	})
	return jobID, nil
}

// Pending returns the number of undelivered messages, including ones not
// yet due.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dead returns messages whose delivery budget was spent, in burial order.
func (b *Broker) Dead() []*broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.dead)
}

// ──────────────────────────────────────────────────
// Delivery
// ──────────────────────────────────────────────────

// Start launches the delivery goroutines. It returns immediately.
func (b *Broker) Start(ctx context.Context, dispatch broker.Dispatcher) error {
	if dispatch == nil {
		return errors.New("memory: dispatch must not be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	if b.closed {
		return courier.ErrBrokerClosed
	}
	b.running = true

	b.logger.Info("memory broker starting",
		slog.Int("concurrency", b.concurrency),
		slog.String("codec", b.codec.Name()),
	)

	for range b.concurrency {
		b.wg.Add(1)
		go b.deliverLoop(ctx, dispatch)
	}
	return nil
}

// Stop signals the delivery goroutines to stop and waits for them to
// finish or the context to expire. The broker accepts no submissions
// afterwards.
func (b *Broker) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.closed = true
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.closed = true
	b.mu.Unlock()

	close(b.stopCh)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("memory broker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliverLoop is run by each delivery goroutine.
func (b *Broker) deliverLoop(ctx context.Context, dispatch broker.Dispatcher) {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		e := b.dequeue()
		if e == nil {
			b.sleep()
			continue
		}

		msg, err := b.codec.Decode(e.data)
		if err != nil {
			b.logger.Error("memory broker: undecodable message dropped",
				slog.String("error", err.Error()),
			)
			continue
		}

		if dispatchErr := dispatch(ctx, msg); dispatchErr != nil {
			b.logger.Debug("dispatch failed",
				slog.String("job_id", msg.ID.String()),
				slog.String("task", msg.Task),
				slog.String("error", dispatchErr.Error()),
			)
			b.maybeRedeliver(e, msg)
		}
	}
}

// dequeue claims the due entry with the highest priority, breaking ties
// by earliest run time then earliest submission.
func (b *Broker) dequeue() *entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	best := -1
	for i, e := range b.pending {
		if !e.runAt.IsZero() && e.runAt.After(now) {
			continue
		}
		if best == -1 || less(e, b.pending[best]) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}

	e := b.pending[best]
	b.pending = append(b.pending[:best], b.pending[best+1:]...)
	return e
}

// less reports whether a should be delivered before c.
func less(a, c *entry) bool {
	if a.priority != c.priority {
		return a.priority > c.priority
	}
	if !a.runAt.Equal(c.runAt) {
		return a.runAt.Before(c.runAt)
	}
	return a.enqueuedAt.Before(c.enqueuedAt)
}

// maybeRedeliver requeues a failed message with a backoff delay until
// its delivery budget is spent. The requeued copy carries the updated
// attempt count.
func (b *Broker) maybeRedeliver(e *entry, msg *broker.Message) {
	e.attempts++
	if e.attempts >= b.maxDeliveries {
		b.mu.Lock()
		b.dead = append(b.dead, msg)
		b.mu.Unlock()
		b.logger.Warn("message moved to dead set",
			slog.String("job_id", msg.ID.String()),
			slog.String("task", msg.Task),
			slog.Int("attempt", msg.Attempt),
		)
		return
	}

	msg.Attempt = e.attempts
	if data, err := b.codec.Encode(msg); err == nil {
		e.data = data
	}

	delay := b.retryBackoff.Delay(e.attempts)
	e.runAt = time.Now().UTC().Add(delay)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.pending = append(b.pending, e)

	b.logger.Debug("message scheduled for redelivery",
		slog.String("job_id", msg.ID.String()),
		slog.String("task", msg.Task),
		slog.Int("attempt", e.attempts),
		slog.Duration("delay", delay),
	)
}

func (b *Broker) sleep() {
	select {
	case <-time.After(b.pollInterval):
	case <-b.stopCh:
	}
}
