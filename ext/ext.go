// Package ext defines the extension system for gatework.
// Extensions are notified of job lifecycle events (enqueued, started,
// completed, failed, expired) and can react to them — logging, metrics,
// tracing, webhooks, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/relaymesh/gatework/httpjob"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a job is written to the store and pushed
// onto its target worker's queue.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *httpjob.HttpJob) error
}

// JobStarted is called when a worker transitions a job from PENDING to
// IN_PROGRESS.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *httpjob.HttpJob) error
}

// JobCompleted is called after a job's handler returns a 2xx response.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *httpjob.HttpJob, elapsed time.Duration) error
}

// JobFailed is called when a job's handler returns a non-2xx response or
// an error.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *httpjob.HttpJob, elapsed time.Duration, err error) error
}

// JobExpired is called when the Gate's dispatcher marks a job EXPIRED
// because its wait deadline elapsed or the caller's context was cancelled
// before the job reached a terminal state. A job record that the store
// drops on TTL does not fire it.
type JobExpired interface {
	OnJobExpired(ctx context.Context, j *httpjob.HttpJob) error
}

// Shutdown is called during graceful shutdown of a Gate or Worker process.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
