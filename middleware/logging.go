package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/courier/task"
)

// Logging returns middleware that logs task start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, tc *task.Context, next Handler) (any, error) {
		logger.Info("task started",
			slog.String("task", tc.Task()),
			slog.String("job_id", tc.JobID().String()),
			slog.String("queue", tc.Queue()),
		)

		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("task failed",
				slog.String("task", tc.Task()),
				slog.String("job_id", tc.JobID().String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("task completed",
				slog.String("task", tc.Task()),
				slog.String("job_id", tc.JobID().String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return result, err
	}
}
