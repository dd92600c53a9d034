//go:build integration

package redis_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/xraph/courier/backoff"
	"github.com/xraph/courier/broker"
	redisbroker "github.com/xraph/courier/broker/redis"
	"github.com/xraph/courier/wire"
)

// setupClient creates a Redis container and returns a connected client.
func setupClient(t *testing.T) *goredis.Client {
	t.Helper()

	ctx := context.Background()

	container, err := redismodule.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse connection string: %v", err)
	}

	client := goredis.NewClient(opts)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestBroker_Ping(t *testing.T) {
	b := redisbroker.New(setupClient(t))
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Submission and delivery tests
// ──────────────────────────────────────────────────

func TestBroker_SubmitAndConsume(t *testing.T) {
	client := setupClient(t)
	b := redisbroker.New(client,
		redisbroker.WithPollInterval(10*time.Millisecond),
		redisbroker.WithConcurrency(1),
	)
	ctx := context.Background()

	for _, m := range []*broker.Message{
		{Task: "low", Queue: "default", Priority: 1, Payload: wire.Payload{"n": int64(1)}},
		{Task: "high", Queue: "default", Priority: 9, Payload: wire.Payload{"n": int64(2)}},
	} {
		if _, err := b.Submit(ctx, m); err != nil {
			t.Fatalf("submit %s: %v", m.Task, err)
		}
	}

	n, err := b.Len(ctx, "default")
	if err != nil {
		t.Fatalf("queue length: %v", err)
	}
	if n != 2 {
		t.Fatalf("queue length = %d, want 2", n)
	}

	delivered := make(chan string, 2)
	if err := b.Start(ctx, func(_ context.Context, msg *broker.Message) error {
		delivered <- msg.Task
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Stop(ctx)

	for i, want := range []string{"high", "low"} {
		select {
		case got := <-delivered:
			if got != want {
				t.Fatalf("delivery %d = %q, want %q", i, got, want)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i)
		}
	}

	queues, err := b.Queues(ctx)
	if err != nil {
		t.Fatalf("queues: %v", err)
	}
	if len(queues) != 1 || queues[0] != "default" {
		t.Fatalf("queues = %v, want [default]", queues)
	}
}

func TestBroker_ScheduleInPromotesWhenDue(t *testing.T) {
	client := setupClient(t)
	b := redisbroker.New(client,
		redisbroker.WithPollInterval(10*time.Millisecond),
		redisbroker.WithConcurrency(1),
	)
	ctx := context.Background()

	const delay = 300 * time.Millisecond
	submitted := time.Now()
	if _, err := b.ScheduleIn(ctx, delay, &broker.Message{Task: "later", Queue: "default"}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	n, err := b.ScheduledLen(ctx)
	if err != nil {
		t.Fatalf("scheduled length: %v", err)
	}
	if n != 1 {
		t.Fatalf("scheduled length = %d, want 1", n)
	}

	deliveredAt := make(chan time.Time, 1)
	if err := b.Start(ctx, func(context.Context, *broker.Message) error {
		deliveredAt <- time.Now()
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Stop(ctx)

	select {
	case at := <-deliveredAt:
		if elapsed := at.Sub(submitted); elapsed < delay {
			t.Fatalf("delivered after %v, want at least %v", elapsed, delay)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for scheduled delivery")
	}
}

func TestBroker_RedeliveryAndDeadSet(t *testing.T) {
	client := setupClient(t)
	b := redisbroker.New(client,
		redisbroker.WithPollInterval(10*time.Millisecond),
		redisbroker.WithConcurrency(1),
		redisbroker.WithMaxDeliveries(2),
		redisbroker.WithRetryBackoff(backoff.NewConstant(20*time.Millisecond)),
	)
	ctx := context.Background()

	if _, err := b.Submit(ctx, &broker.Message{Task: "doomed", Queue: "default"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var calls atomic.Int64
	if err := b.Start(ctx, func(context.Context, *broker.Message) error {
		calls.Add(1)
		return errors.New("permanent failure")
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Stop(ctx)

	deadline := time.Now().Add(10 * time.Second)
	for {
		dead, err := b.Dead(ctx)
		if err != nil {
			t.Fatalf("dead: %v", err)
		}
		if len(dead) == 1 {
			if dead[0].Task != "doomed" || dead[0].Attempt != 1 {
				t.Fatalf("dead message = task %q attempt %d, want task %q attempt 1",
					dead[0].Task, dead[0].Attempt, "doomed")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out, dispatcher called %d times, dead set %d", calls.Load(), len(dead))
		}
		time.Sleep(20 * time.Millisecond)
	}

	if got := calls.Load(); got != 2 {
		t.Fatalf("dispatcher called %d times, want 2", got)
	}
}
