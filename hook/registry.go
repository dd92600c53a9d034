package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/courier/broker"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/task"
)

// Named entry types pair an event implementation with the hook name
// captured at registration time. This avoids type-asserting back to
// Hook inside the emit methods.
type submittedEntry struct {
	name string
	hook Submitted
}

type submitFailedEntry struct {
	name string
	hook SubmitFailed
}

type dispatchStartedEntry struct {
	name string
	hook DispatchStarted
}

type dispatchSucceededEntry struct {
	name string
	hook DispatchSucceeded
}

type dispatchFailedEntry struct {
	name string
	hook DispatchFailed
}

type cronFiredEntry struct {
	name string
	hook CronFired
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to
// them. It type-caches hooks at registration time so emit calls iterate
// only over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	// Type-cached slices for each lifecycle event.
	submitted         []submittedEntry
	submitFailed      []submitFailedEntry
	dispatchStarted   []dispatchStartedEntry
	dispatchSucceeded []dispatchSucceededEntry
	dispatchFailed    []dispatchFailedEntry
	cronFired         []cronFiredEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if e, ok := h.(Submitted); ok {
		r.submitted = append(r.submitted, submittedEntry{name, e})
	}
	if e, ok := h.(SubmitFailed); ok {
		r.submitFailed = append(r.submitFailed, submitFailedEntry{name, e})
	}
	if e, ok := h.(DispatchStarted); ok {
		r.dispatchStarted = append(r.dispatchStarted, dispatchStartedEntry{name, e})
	}
	if e, ok := h.(DispatchSucceeded); ok {
		r.dispatchSucceeded = append(r.dispatchSucceeded, dispatchSucceededEntry{name, e})
	}
	if e, ok := h.(DispatchFailed); ok {
		r.dispatchFailed = append(r.dispatchFailed, dispatchFailedEntry{name, e})
	}
	if e, ok := h.(CronFired); ok {
		r.cronFired = append(r.cronFired, cronFiredEntry{name, e})
	}
	if e, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, e})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// ──────────────────────────────────────────────────
// Submission event emitters
// ──────────────────────────────────────────────────

// EmitSubmitted notifies all hooks that implement Submitted.
func (r *Registry) EmitSubmitted(ctx context.Context, msg *broker.Message) {
	for _, e := range r.submitted {
		if err := e.hook.OnSubmitted(ctx, msg); err != nil {
			r.logHookError("OnSubmitted", e.name, err)
		}
	}
}

// EmitSubmitFailed notifies all hooks that implement SubmitFailed.
func (r *Registry) EmitSubmitFailed(ctx context.Context, taskName string, submitErr error) {
	for _, e := range r.submitFailed {
		if err := e.hook.OnSubmitFailed(ctx, taskName, submitErr); err != nil {
			r.logHookError("OnSubmitFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Execution event emitters
// ──────────────────────────────────────────────────

// EmitDispatchStarted notifies all hooks that implement DispatchStarted.
func (r *Registry) EmitDispatchStarted(ctx context.Context, tc *task.Context) {
	for _, e := range r.dispatchStarted {
		if err := e.hook.OnDispatchStarted(ctx, tc); err != nil {
			r.logHookError("OnDispatchStarted", e.name, err)
		}
	}
}

// EmitDispatchSucceeded notifies all hooks that implement DispatchSucceeded.
func (r *Registry) EmitDispatchSucceeded(ctx context.Context, tc *task.Context, result any, elapsed time.Duration) {
	for _, e := range r.dispatchSucceeded {
		if err := e.hook.OnDispatchSucceeded(ctx, tc, result, elapsed); err != nil {
			r.logHookError("OnDispatchSucceeded", e.name, err)
		}
	}
}

// EmitDispatchFailed notifies all hooks that implement DispatchFailed.
func (r *Registry) EmitDispatchFailed(ctx context.Context, tc *task.Context, taskErr error, elapsed time.Duration) {
	for _, e := range r.dispatchFailed {
		if err := e.hook.OnDispatchFailed(ctx, tc, taskErr, elapsed); err != nil {
			r.logHookError("OnDispatchFailed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitCronFired notifies all hooks that implement CronFired.
func (r *Registry) EmitCronFired(ctx context.Context, entryName string, jobID id.JobID) {
	for _, e := range r.cronFired {
		if err := e.hook.OnCronFired(ctx, entryName, jobID); err != nil {
			r.logHookError("OnCronFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(event, hookName string, err error) {
	r.logger.Warn("hook error",
		slog.String("event", event),
		slog.String("hook", hookName),
		slog.String("error", err.Error()),
	)
}
