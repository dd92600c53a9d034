package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/courier/task"
)

// Timeout returns middleware that enforces an execution deadline on
// every task below it. When the deadline is exceeded the context is
// cancelled and the handler should return context.DeadlineExceeded.
// A non-positive duration disables the middleware.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, tc *task.Context, next Handler) (any, error) {
		if d > 0 {
			logger.Debug("task timeout set",
				slog.String("task", tc.Task()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
