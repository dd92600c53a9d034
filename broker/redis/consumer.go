package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/courier"
	"github.com/xraph/courier/broker"
)

// Start launches the consumer goroutines and the scheduled-set mover.
// It returns immediately.
func (b *Broker) Start(ctx context.Context, dispatch broker.Dispatcher) error {
	if dispatch == nil {
		return errors.New("redis: dispatch must not be nil")
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

	b.logger.Info("redis broker starting",
		slog.Int("concurrency", b.concurrency),
		slog.Any("queues", b.queues),
		slog.String("codec", b.codec.Name()),
	)

	b.group = new(errgroup.Group)
	b.group.Go(func() error { return b.moveDueLoop(ctx) })
	for range b.concurrency {
		b.group.Go(func() error { return b.consumeLoop(ctx, dispatch) })
	}
	return nil
}

// Stop signals the consumer goroutines to stop and waits for them to
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
	group := b.group
	b.mu.Unlock()

	close(b.stopCh)

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		b.logger.Info("redis broker stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// consumeLoop is run by each consumer goroutine.
func (b *Broker) consumeLoop(ctx context.Context, dispatch broker.Dispatcher) error {
	for {
		select {
		case <-b.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil
			}
		}

		msg, ok := b.pop(ctx)
		if !ok {
			b.sleep()
			continue
		}

		if err := dispatch(ctx, msg); err != nil {
			b.logger.Debug("dispatch failed",
				slog.String("job_id", msg.ID.String()),
				slog.String("task", msg.Task),
				slog.String("error", err.Error()),
			)
			b.redeliver(ctx, msg)
		}
	}
}

// pop claims the best ready message across the configured queues.
func (b *Broker) pop(ctx context.Context) (*broker.Message, bool) {
	for _, q := range b.queues {
		zs, err := b.client.ZPopMin(ctx, b.queueKey(q), 1).Result()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				b.logger.Error("pop failed",
					slog.String("queue", q),
					slog.String("error", err.Error()),
				)
			}
			return nil, false
		}
		if len(zs) == 0 {
			continue
		}
		raw, ok := zs[0].Member.(string)
		if !ok {
			continue
		}
		msg, decErr := b.codec.Decode([]byte(raw))
		if decErr != nil {
			b.logger.Error("undecodable message dropped",
				slog.String("queue", q),
				slog.String("error", decErr.Error()),
			)
			continue
		}
		return msg, true
	}
	return nil, false
}

// moveDueLoop periodically promotes scheduled messages whose run time
// has passed into their ready queue.
func (b *Broker) moveDueLoop(ctx context.Context) error {
	for {
		select {
		case <-b.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		if err := b.moveDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Error("promoting scheduled messages failed",
				slog.String("error", err.Error()),
			)
		}
		b.sleep()
	}
}

// moveDue promotes one batch of due messages. ZRem is the claim:
// whichever mover removes a member owns it.
func (b *Broker) moveDue(ctx context.Context) error {
	now := time.Now().UTC()
	members, err := b.client.ZRangeByScore(ctx, b.scheduledKey(), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return err
	}

	for _, m := range members {
		removed, remErr := b.client.ZRem(ctx, b.scheduledKey(), m).Result()
		if remErr != nil {
			return remErr
		}
		if removed == 0 {
			continue
		}
		msg, decErr := b.codec.Decode([]byte(m))
		if decErr != nil {
			b.logger.Error("undecodable scheduled message dropped",
				slog.String("error", decErr.Error()),
			)
			continue
		}
		if addErr := b.client.ZAdd(ctx, b.queueKey(msg.Queue), goredis.Z{
			Score:  readyScore(msg.Priority, now),
			Member: m,
		}).Err(); addErr != nil {
			return addErr
		}
	}
	return nil
}

// redeliver requeues a failed message with a backoff delay, or buries
// it once its delivery budget is spent.
func (b *Broker) redeliver(ctx context.Context, msg *broker.Message) {
	next := msg.Attempt + 1
	if next >= b.maxDeliveries {
		b.bury(ctx, msg)
		return
	}

	delay := b.retryBackoff.Delay(next)
	cp := *msg
	cp.Attempt = next
	cp.RunAt = time.Now().UTC().Add(delay)

	data, err := b.codec.Encode(&cp)
	if err != nil {
		b.logger.Error("re-encoding failed message",
			slog.String("job_id", cp.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := b.client.ZAdd(ctx, b.scheduledKey(), goredis.Z{
		Score:  float64(cp.RunAt.UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		b.logger.Error("scheduling redelivery failed",
			slog.String("job_id", cp.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	b.logger.Debug("message scheduled for redelivery",
		slog.String("job_id", cp.ID.String()),
		slog.String("task", cp.Task),
		slog.Int("attempt", next),
		slog.Duration("delay", delay),
	)
}

// bury moves a message whose delivery budget is spent into the dead
// set, evicting the oldest entries beyond the cap.
func (b *Broker) bury(ctx context.Context, msg *broker.Message) {
	data, err := b.codec.Encode(msg)
	if err != nil {
		b.logger.Error("encoding dead message",
			slog.String("job_id", msg.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	pipe := b.client.TxPipeline()
	pipe.ZAdd(ctx, b.deadKey(), goredis.Z{
		Score:  float64(time.Now().UTC().UnixMilli()),
		Member: data,
	})
	pipe.ZRemRangeByRank(ctx, b.deadKey(), 0, int64(-deadSetCap-1))
	if _, err := pipe.Exec(ctx); err != nil {
		b.logger.Error("burying message failed",
			slog.String("job_id", msg.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	b.logger.Warn("message moved to dead set",
		slog.String("job_id", msg.ID.String()),
		slog.String("task", msg.Task),
		slog.Int("attempt", msg.Attempt),
	)
}

func (b *Broker) sleep() {
	select {
	case <-time.After(b.pollInterval):
	case <-b.stopCh:
	}
}
