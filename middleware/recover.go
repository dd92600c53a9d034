package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/courier/task"
)

// Recover returns middleware that recovers from panics anywhere below it
// in the chain. Panics are converted to errors and logged with a stack
// trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, tc *task.Context, next Handler) (result any, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("task chain panicked",
					slog.String("task", tc.Task()),
					slog.String("job_id", tc.JobID().String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				result = nil
				retErr = fmt.Errorf("panic in task %s: %v", tc.Task(), r)
			}
		}()
		return next(ctx)
	}
}
