// Package tracing wraps the OpenTelemetry SDK for the acquisition core's
// spans, grounded on the teacher's engine/monitoring.go
// NewOpenTelemetryTracer/StartBusinessOperation pattern, narrowed to a
// single resource-scoped provider (no semconv dependency — this module
// sets the handful of resource attributes it needs directly) and
// generalized from "business rule evaluation" events to cascade/challenge/
// captcha acquisition events.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer wraps an otel.Tracer scoped to one service name.
type Tracer struct {
	tracer oteltrace.Tracer
}

// New configures a process-wide TracerProvider with no external exporter
// (spans are recorded but not shipped — a caller wanting an OTLP exporter
// wires one onto the returned *sdktrace.TracerProvider before traffic
// starts) and returns a Tracer bound to serviceName.
func New(serviceName string) (*Tracer, *sdktrace.TracerProvider) {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return &Tracer{tracer: otel.Tracer(serviceName)}, tp
}

// StartAcquisition begins a span for one URL's full cascade.
func (t *Tracer) StartAcquisition(ctx context.Context, url string) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "acquisition", oteltrace.WithAttributes(attribute.String("url", url)))
}

// RecordEngineAttempt adds an event for one engine's attempt within the
// current span.
func (t *Tracer) RecordEngineAttempt(ctx context.Context, engine string, durationMs int64, outcome string) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("engine_attempt", oteltrace.WithAttributes(
		attribute.String("engine", engine),
		attribute.Int64("duration_ms", durationMs),
		attribute.String("outcome", outcome),
	))
}

// RecordChallenge adds an event when a challenge is encountered/resolved.
func (t *Tracer) RecordChallenge(ctx context.Context, challengeType string, resolved bool) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("challenge", oteltrace.WithAttributes(
		attribute.String("type", challengeType),
		attribute.Bool("resolved", resolved),
	))
}

// RecordError records err on the current span and tags its error.type.
func (t *Tracer) RecordError(ctx context.Context, errorType string, err error) {
	span := oteltrace.SpanFromContext(ctx)
	if !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", errorType),
		attribute.String("error.message", fmt.Sprint(err)),
	)
}

// Finish closes span, tagging overall success.
func Finish(span oteltrace.Span, success bool) {
	if span.IsRecording() {
		span.SetAttributes(attribute.Bool("success", success))
	}
	span.End()
}

// ExtractIDs returns the current span's trace/span IDs for log correlation,
// empty strings if no span is active.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
