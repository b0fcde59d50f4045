package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	// Trace operation names
	TraceInventoryQuery    = "sysinventory.query"
	TraceDescribeProcesses = "sysinventory.describe_processes"

	// Attribute keys
	AttrOperation  = "sysinventory.operation"
	AttrPlatform   = "sysinventory.platform"
	AttrPID        = "sysinventory.process.pid"
	AttrPIDCount   = "sysinventory.process.count"
	AttrResultSize = "sysinventory.result.size"
	AttrErrorType  = "sysinventory.error.type"
)

// TraceHelper provides helper methods for creating traces
type TraceHelper struct {
	tracer oteltrace.Tracer
}

// NewTraceHelper wraps tracer
func NewTraceHelper(tracer oteltrace.Tracer) *TraceHelper {
	return &TraceHelper{tracer: tracer}
}

// StartSpan starts a new tracing span with common attributes
func (th *TraceHelper) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return th.tracer.Start(ctx, operationName, oteltrace.WithAttributes(attrs...))
}

// RecordError records an error on the span
func (th *TraceHelper) RecordError(span oteltrace.Span, err error, description string) {
	if err != nil {
		span.SetStatus(codes.Error, description)
		span.RecordError(err, oteltrace.WithAttributes(
			attribute.String(AttrErrorType, description),
		))
	}
}

// SetSpanSuccess marks span as successful
func (th *TraceHelper) SetSpanSuccess(span oteltrace.Span) {
	span.SetStatus(codes.Ok, "Success")
}

// TraceQueryFunc traces one inventory query. fn returns the number of items
// it produced, which is recorded on the span.
func (th *TraceHelper) TraceQueryFunc(ctx context.Context, operation string, attrs []attribute.KeyValue, fn func(context.Context) (int, error)) error {
	ctx, span := th.StartSpan(ctx, TraceInventoryQuery,
		append([]attribute.KeyValue{attribute.String(AttrOperation, operation)}, attrs...)...,
	)
	defer span.End()

	start := time.Now()
	size, err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.Int(AttrResultSize, size),
	)

	if err != nil {
		th.RecordError(span, err, operation+" failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}

// TraceDescribeProcessesFunc traces a batch process lookup
func (th *TraceHelper) TraceDescribeProcessesFunc(ctx context.Context, pidCount int, fn func(context.Context) (int, error)) error {
	ctx, span := th.StartSpan(ctx, TraceDescribeProcesses,
		attribute.Int(AttrPIDCount, pidCount),
	)
	defer span.End()

	start := time.Now()
	found, err := fn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.Int(AttrResultSize, found),
	)

	if err != nil {
		th.RecordError(span, err, "describe processes failed")
		return err
	}

	th.SetSpanSuccess(span)
	return nil
}

// GetTraceHelper returns a trace helper instance from telemetry service
func (s *Service) GetTraceHelper() *TraceHelper {
	return &TraceHelper{tracer: s.Tracer()}
}
