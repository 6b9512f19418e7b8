// Package ext defines the extension system for gatework.
//
// Extensions are notified of job lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc. Each
// lifecycle hook is a separate interface so extensions opt in only to the
// events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *httpjob.HttpJob, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.RequestID, elapsed)
//	    return nil
//	}
//
// # Lifecycle Hooks
//
//   - [JobEnqueued] — job was written to the store and queued
//   - [JobStarted] — a worker claimed the job (PENDING → IN_PROGRESS)
//   - [JobCompleted] — job's handler returned a 2xx response
//   - [JobFailed] — job's handler returned a non-2xx response or errored
//   - [JobExpired] — the dispatcher marked the job EXPIRED (wait deadline or caller cancellation)
//   - [Shutdown] — the Gate or Worker process is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
