package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaymesh/gatework/httpjob"
)

// Logging returns middleware that logs handler start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *httpjob.HttpJob, next Handler) error {
		logger.Info("job started",
			slog.String("request_id", j.RequestID),
			slog.String("method", j.Method),
			slog.String("path", j.Path),
			slog.String("target_worker", j.TargetWorker),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("job failed",
				slog.String("request_id", j.RequestID),
				slog.String("method", j.Method),
				slog.String("path", j.Path),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("request_id", j.RequestID),
				slog.String("method", j.Method),
				slog.String("path", j.Path),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
