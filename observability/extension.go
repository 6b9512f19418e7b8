package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/relaymesh/gatework/ext"
	"github.com/relaymesh/gatework/httpjob"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobEnqueued  = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobExpired   = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope name for lifecycle-level counters.
// Per-request duration and status metrics are recorded separately by
// middleware.Metrics; this extension tracks system-wide lifecycle totals
// that survive independent of any single request's middleware chain (for
// example, jobs expired by the Gate's dispatcher never pass through the
// worker's middleware stack at all).
const meterName = "github.com/relaymesh/gatework/observability"

// MetricsExtension records system-wide job lifecycle counters via the
// global OTel MeterProvider. Register it with an ext.Registry to
// automatically track enqueue, completion, failure, and expiry counts.
type MetricsExtension struct {
	enqueued  metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	expired   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global meter.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension using the
// provided meter. Use this variant for testing with a ManualReader.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	enqueued, _ := meter.Int64Counter("gatework.lifecycle.enqueued",
		metric.WithDescription("Total jobs enqueued"))
	completed, _ := meter.Int64Counter("gatework.lifecycle.completed",
		metric.WithDescription("Total jobs completed successfully"))
	failed, _ := meter.Int64Counter("gatework.lifecycle.failed",
		metric.WithDescription("Total jobs that failed"))
	expired, _ := meter.Int64Counter("gatework.lifecycle.expired",
		metric.WithDescription("Total jobs marked EXPIRED by the dispatcher"))

	return &MetricsExtension{
		enqueued:  enqueued,
		completed: completed,
		failed:    failed,
		expired:   expired,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, _ *httpjob.HttpJob) error {
	m.enqueued.Add(ctx, 1)
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, _ *httpjob.HttpJob, _ time.Duration) error {
	m.completed.Add(ctx, 1)
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, _ *httpjob.HttpJob, _ time.Duration, _ error) error {
	m.failed.Add(ctx, 1)
	return nil
}

// OnJobExpired implements ext.JobExpired.
func (m *MetricsExtension) OnJobExpired(ctx context.Context, _ *httpjob.HttpJob) error {
	m.expired.Add(ctx, 1)
	return nil
}
