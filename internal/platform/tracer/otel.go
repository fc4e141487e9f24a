package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const scope = "gatekeeper"

type otelTracer struct {
	tracer trace.Tracer
}

// NewOTel traces through the globally registered provider.
func NewOTel() Tracer {
	return FromProvider(otel.GetTracerProvider())
}

// NewNoop returns a tracer whose spans are never recorded.
func NewNoop() Tracer {
	return FromProvider(noop.NewTracerProvider())
}

func FromProvider(tp trace.TracerProvider) Tracer {
	return &otelTracer{tracer: tp.Tracer(scope)}
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, spanAdapter{span}
}

type spanAdapter struct {
	trace.Span
}

func (s spanAdapter) End(err error) {
	if err != nil {
		s.Span.RecordError(err)
		s.Span.SetStatus(codes.Error, err.Error())
	}
	s.Span.End()
}

func (s spanAdapter) AddEvent(name string, attrs ...Attribute) {
	s.Span.AddEvent(name, trace.WithAttributes(attrs...))
}
