package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"entitycache/internal/core"
)

const instrumentationName = "entitycache/internal/core"

var _ core.Tracer = (*Tracer)(nil)

// Tracer adapts an OpenTelemetry tracer to core.Tracer. Each dispatched
// action becomes one span named after the action type.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer uses tp, or the global provider when tp is nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(instrumentationName)}
}

// Start implements core.Tracer.
func (t *Tracer) Start(ctx context.Context, operation string) (context.Context, core.TraceSpan) {
	ctx, span := t.tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("entitycache.action", operation)),
	)
	return ctx, dispatchSpan{span: span}
}

type dispatchSpan struct {
	span trace.Span
}

func (s dispatchSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
