package middleware

import (
	"context"

	"github.com/xraph/courier/task"
)

// Handler is the terminal function that runs task logic and produces its
// result.
type Handler func(ctx context.Context) (any, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the execution context of the task
// being run, and the next handler to call. Middleware MUST call next to
// continue the chain (unless short-circuiting on error).
type Middleware func(ctx context.Context, tc *task.Context, next Handler) (any, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, tc *task.Context, next Handler) (any, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (any, error) {
				return mw(ctx, tc, prev)
			}
		}
		return h(ctx)
	}
}
