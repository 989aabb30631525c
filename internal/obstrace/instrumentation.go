package obstrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "guardian"

// StartSupervisorTickSpan creates a span for one supervisor loop iteration.
func StartSupervisorTickSpan(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, "supervisor.tick", trace.WithAttributes(attrs...))
}

// StartDriverSpan creates a span for a process driver operation
// (start, stop, restart, wait_for_ready).
func StartDriverSpan(ctx context.Context, processName, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	attrs = append(attrs,
		attribute.String("process.name", processName),
		attribute.String("driver.operation", operation),
	)
	return tracer.Start(ctx, "driver."+operation, trace.WithAttributes(attrs...))
}

// StartHealthCheckSpan creates a span for a full five-probe health
// evaluation of one process.
func StartHealthCheckSpan(ctx context.Context, processName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	attrs = append(attrs, attribute.String("health_check.process_name", processName))
	return tracer.Start(ctx, "health_check.evaluate", trace.WithAttributes(attrs...))
}

// StartRecoverySpan creates a span for recovery-engine rule matching and
// action execution.
func StartRecoverySpan(ctx context.Context, processName, scenario string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	attrs = append(attrs,
		attribute.String("recovery.process_name", processName),
		attribute.String("recovery.scenario", scenario),
	)
	return tracer.Start(ctx, "recovery.execute", trace.WithAttributes(attrs...))
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error, description string) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.description", description),
	))
	span.SetStatus(codes.Error, description)
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets additional attributes on the span.
func SetAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
