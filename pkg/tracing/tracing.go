package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer sets the tracer to be used for tracing.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a new span with the given name and returns the context and span.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if tracer == nil || !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// Provider owns the SDK tracer provider so the job can flush spans before exiting.
type Provider struct {
	provider *sdktrace.TracerProvider
}

// NewProvider installs a batching tracer provider over the exporter and registers its tracer.
func NewProvider(exporter sdktrace.SpanExporter, serviceName string) *Provider {
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	SetTracer(tp.Tracer(serviceName))
	return &Provider{provider: tp}
}

// Shutdown flushes pending spans and clears the global tracer.
func (p *Provider) Shutdown(ctx context.Context) error {
	SetTracer(nil)
	return p.provider.Shutdown(ctx)
}
