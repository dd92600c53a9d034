// Package redis implements a broker backed by Redis for distributed
// workloads. Ready messages live in per-queue Sorted Sets scored by
// priority, scheduled messages in a shared Sorted Set scored by run
// time; a mover goroutine promotes due messages into their ready queue.
// Messages whose delivery budget is spent land in a capped dead set.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	b := redisbroker.New(client)
//	if err := b.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xraph/courier"
	"github.com/xraph/courier/backoff"
	"github.com/xraph/courier/broker"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/task"
)

// Ensure Broker implements both broker contracts at compile time.
var (
	_ broker.Broker   = (*Broker)(nil)
	_ broker.Consumer = (*Broker)(nil)
)

// deadSetCap bounds the dead set. Oldest entries are evicted first.
const deadSetCap = 1000

// Broker is a Redis-backed job queue. The caller owns the Redis client
// lifecycle.
type Broker struct {
	client        goredis.Cmdable
	codec         broker.Codec
	logger        *slog.Logger
	keyPrefix     string
	queues        []string
	pollInterval  time.Duration
	concurrency   int
	maxDeliveries int
	retryBackoff  backoff.Strategy
	limiter       *rate.Limiter

	mu      sync.Mutex
	running bool
	closed  bool

	stopCh chan struct{}
	group  *errgroup.Group
}

// Option configures a Broker.
type Option func(*Broker)

// WithCodec sets the codec messages are stored with. Defaults to JSON.
func WithCodec(c broker.Codec) Option {
	return func(b *Broker) { b.codec = c }
}

// WithLogger sets the broker's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithKeyPrefix sets the prefix for every Redis key the broker touches.
// Defaults to "courier:".
func WithKeyPrefix(prefix string) Option {
	return func(b *Broker) { b.keyPrefix = prefix }
}

// WithQueues sets the queues consumed by Start, in descending preference
// order. Defaults to the default queue only.
func WithQueues(queues ...string) Option {
	return func(b *Broker) { b.queues = queues }
}

// WithPollInterval sets how often consumers poll for due messages.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) { b.pollInterval = d }
}

// WithConcurrency sets the number of consumer goroutines.
func WithConcurrency(n int) Option {
	return func(b *Broker) { b.concurrency = n }
}

// WithMaxDeliveries sets how many times a message is handed to the
// dispatcher before it is moved to the dead set. The default of 1 means
// failed dispatches are not redelivered.
func WithMaxDeliveries(n int) Option {
	return func(b *Broker) { b.maxDeliveries = n }
}

// WithRetryBackoff sets the delay strategy between redeliveries.
func WithRetryBackoff(s backoff.Strategy) Option {
	return func(b *Broker) { b.retryBackoff = s }
}

// WithRateLimit caps the rate at which consumers fetch messages across
// all goroutines of this broker instance.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(b *Broker) { b.limiter = rate.NewLimiter(limit, burst) }
}

// New returns a Broker on top of an existing Redis client.
func New(client goredis.Cmdable, opts ...Option) *Broker {
	b := &Broker{
		client:        client,
		codec:         &broker.JSONCodec{},
		logger:        slog.Default(),
		keyPrefix:     "courier:",
		queues:        []string{task.DefaultQueue},
		pollInterval:  100 * time.Millisecond,
		concurrency:   4,
		maxDeliveries: 1,
		retryBackoff:  backoff.DefaultStrategy(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ping verifies the Redis connection is alive.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
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

func (b *Broker) enqueue(ctx context.Context, runAt time.Time, msg *broker.Message) (id.JobID, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return id.Nil, courier.ErrBrokerClosed
	}

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

	pipe := b.client.TxPipeline()
	pipe.SAdd(ctx, b.queuesKey(), cp.Queue)
	if !runAt.IsZero() && runAt.After(now) {
		pipe.ZAdd(ctx, b.scheduledKey(), goredis.Z{Score: float64(runAt.UnixMilli()), Member: data})
	} else {
		pipe.ZAdd(ctx, b.queueKey(cp.Queue), goredis.Z{Score: readyScore(cp.Priority, now), Member: data})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return id.Nil, fmt.Errorf("courier/redis: enqueue: %w", err)
	}
	return jobID, nil
}

// ──────────────────────────────────────────────────
// Introspection
// ──────────────────────────────────────────────────

// Len returns the number of ready messages in a queue.
func (b *Broker) Len(ctx context.Context, queue string) (int64, error) {
	n, err := b.client.ZCard(ctx, b.queueKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: queue length: %w", err)
	}
	return n, nil
}

// ScheduledLen returns the number of messages waiting on their run time.
func (b *Broker) ScheduledLen(ctx context.Context) (int64, error) {
	n, err := b.client.ZCard(ctx, b.scheduledKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: scheduled length: %w", err)
	}
	return n, nil
}

// Queues returns every queue name the broker has seen, sorted.
func (b *Broker) Queues(ctx context.Context) ([]string, error) {
	names, err := b.client.SMembers(ctx, b.queuesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list queues: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Dead returns messages whose delivery budget was spent, oldest first.
// Entries that no longer decode are skipped.
func (b *Broker) Dead(ctx context.Context) ([]*broker.Message, error) {
	raws, err := b.client.ZRange(ctx, b.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list dead: %w", err)
	}
	msgs := make([]*broker.Message, 0, len(raws))
	for _, raw := range raws {
		msg, decErr := b.codec.Decode([]byte(raw))
		if decErr != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ──────────────────────────────────────────────────
// Keys
// ──────────────────────────────────────────────────

// queueKey returns the ready Sorted Set for a queue: courier:queue:{name}
func (b *Broker) queueKey(name string) string { return b.keyPrefix + "queue:" + name }

// scheduledKey holds not-yet-due messages scored by run time in Unix
// milliseconds.
func (b *Broker) scheduledKey() string { return b.keyPrefix + "scheduled" }

// deadKey holds messages whose delivery budget is spent, scored by
// burial time.
func (b *Broker) deadKey() string { return b.keyPrefix + "dead" }

// queuesKey is the Set tracking every queue name seen.
func (b *Broker) queuesKey() string { return b.keyPrefix + "queues" }

// readyScore computes a ready-queue score from priority and enqueue
// time. Lower score pops first: priority is negated so higher priority
// sorts first, with a fractional time component for FIFO within the
// same priority.
func readyScore(priority int, at time.Time) float64 {
	return float64(-priority) + float64(at.UnixMilli())/1e15
}
