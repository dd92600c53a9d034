// Package task defines task declarations and the execution context their
// handlers run under.
//
// A task pairs a name with an optional argument schema and a handler. The
// schema drives both validation regimes of the argument pipeline; a task
// without a schema takes no arguments and tolerates any caller input. A
// task without a handler can still be submitted, for processes that only
// produce work, but dispatching it fails.
package task

import "context"

// Handler is the work body of a task. It receives the standard context
// for cancellation and the execution context carrying the typed
// arguments. The returned value is handed back unchanged to whoever
// triggered the invocation.
type Handler func(ctx context.Context, tc *Context) (any, error)
