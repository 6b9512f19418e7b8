// Package observability provides an OpenTelemetry-based metrics extension
// for gatework. MetricsExtension implements ext lifecycle hooks to record
// system-wide counters for job enqueue, completion, failure, and expiry
// events — including jobs expired by the Gate's dispatcher outside any
// Worker's middleware chain.
//
// For per-request duration and status metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
