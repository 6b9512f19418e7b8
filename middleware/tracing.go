package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaymesh/gatework/httpjob"
)

// tracerName is the instrumentation scope name for gatework tracing.
const tracerName = "github.com/relaymesh/gatework"

// Tracing returns middleware that wraps job execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through with zero
// overhead.
//
// Span attributes include: gatework.request_id, gatework.method,
// gatework.path, gatework.target_worker. On error, the span status is set
// to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *httpjob.HttpJob, next Handler) error {
		ctx, span := tracer.Start(ctx, "gatework.job.execute",
			trace.WithAttributes(
				attribute.String("gatework.request_id", j.RequestID),
				attribute.String("gatework.method", j.Method),
				attribute.String("gatework.path", j.Path),
				attribute.String("gatework.target_worker", j.TargetWorker),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
