package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/relaymesh/gatework/httpjob"
)

// JobDeadlineHeader carries a per-job execution deadline as epoch
// milliseconds. When a job carries it, Timeout derives a context.WithDeadline
// from it instead of applying its static duration.
const JobDeadlineHeader = "X-Job-Deadline"

// Timeout returns middleware that bounds handler execution with a deadline.
// If the job carries JobDeadlineHeader, that epoch-millisecond deadline is
// used via context.WithDeadline. Otherwise, if d is non-zero, a
// context.WithTimeout wraps the handler call using d. When the deadline is
// exceeded the context is cancelled and the handler should return
// context.DeadlineExceeded.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, j *httpjob.HttpJob, next Handler) error {
		if raw, ok := j.Headers[JobDeadlineHeader]; ok {
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				logger.Warn("invalid job deadline header, falling back to static timeout",
					slog.String("request_id", j.RequestID),
					slog.String("value", raw),
				)
			} else {
				deadline := time.UnixMilli(ms)
				logger.Debug("handler deadline set from job header",
					slog.String("request_id", j.RequestID),
					slog.Time("deadline", deadline),
				)
				var cancel context.CancelFunc
				ctx, cancel = context.WithDeadline(ctx, deadline)
				defer cancel()
				return next(ctx)
			}
		}

		if d > 0 {
			logger.Debug("handler timeout set",
				slog.String("request_id", j.RequestID),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
