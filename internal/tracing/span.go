package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrChannel   = attribute.Key("sseflood.channel")
	AttrEventType = attribute.Key("sseflood.event_type")
	AttrScenario  = attribute.Key("sseflood.scenario")
	AttrSamples   = attribute.Key("sseflood.samples")
)

// StartScenarioSpan starts the parent span of one benchmark scenario.
func StartScenarioSpan(ctx context.Context, tracer trace.Tracer, scenario string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bench "+scenario,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrScenario.String(scenario)),
	)
}

// StartPublishSpan starts a client span for one publish to channel.
func StartPublishSpan(ctx context.Context, tracer trace.Tracer, channel, eventType string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "publish "+eventType,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("messaging.system", "sse"),
		attribute.String("http.request.method", http.MethodPost),
		AttrChannel.String(channel),
		AttrEventType.String(eventType),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
