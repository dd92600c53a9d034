// Package hook defines the lifecycle extension system for courier.
//
// Hooks are notified of pipeline events and can react to them:
// recording metrics, emitting webhooks, writing audit trails, etc.
// Each lifecycle event is a separate interface so hooks opt in only
// to the events they care about.
//
// # Implementing a Hook
//
//	type MyHook struct{}
//
//	func (h *MyHook) Name() string { return "my-hook" }
//
//	// Opt in to specific events by implementing their interfaces.
//	func (h *MyHook) OnDispatchSucceeded(ctx context.Context, tc *task.Context, result any, elapsed time.Duration) error {
//	    log.Printf("task %s finished in %s", tc.Task(), elapsed)
//	    return nil
//	}
//
// # Lifecycle Events
//
//   - [Submitted] — a submission was accepted by the broker
//   - [SubmitFailed] — a submission was rejected before reaching the broker
//   - [DispatchStarted] — execution of a delivered message began
//   - [DispatchSucceeded] — execution finished successfully
//   - [DispatchFailed] — execution failed
//   - [CronFired] — a periodic entry was triggered and a job submitted
//   - [Shutdown] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered hooks that
// implement the corresponding interface.
package hook

import (
	"context"
	"time"

	"github.com/xraph/courier/broker"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/task"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Submission events
// ──────────────────────────────────────────────────

// Submitted is called after the broker accepts a message. The message
// carries its broker-assigned job ID.
type Submitted interface {
	OnSubmitted(ctx context.Context, msg *broker.Message) error
}

// SubmitFailed is called when a submission is rejected, either by
// argument validation or by the broker itself.
type SubmitFailed interface {
	OnSubmitFailed(ctx context.Context, taskName string, err error) error
}

// ──────────────────────────────────────────────────
// Execution events
// ──────────────────────────────────────────────────

// DispatchStarted is called when execution of a delivered message begins.
type DispatchStarted interface {
	OnDispatchStarted(ctx context.Context, tc *task.Context) error
}

// DispatchSucceeded is called after a task finishes successfully.
type DispatchSucceeded interface {
	OnDispatchSucceeded(ctx context.Context, tc *task.Context, result any, elapsed time.Duration) error
}

// DispatchFailed is called when a task fails.
type DispatchFailed interface {
	OnDispatchFailed(ctx context.Context, tc *task.Context, taskErr error, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Other events
// ──────────────────────────────────────────────────

// CronFired is called when a periodic entry fires and submits a job.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, jobID id.JobID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
