package tracing

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	headerTraceParent = "traceparent"
	headerTraceState  = "tracestate"
)

// propagator carries W3C trace context only. Baggage is never forwarded to
// form endpoints or webhooks.
func propagator() propagation.TextMapPropagator {
	return propagation.TraceContext{}
}

// TraceContextStrings captures the span in ctx so a job started later can
// continue the request's trace.
func TraceContextStrings(ctx context.Context) (traceParent string, traceState string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get(headerTraceParent), carrier.Get(headerTraceState)
}

// ContextWithRemoteParent is the inverse of TraceContextStrings.
func ContextWithRemoteParent(ctx context.Context, traceParent string, traceState string) context.Context {
	carrier := propagation.MapCarrier{}
	if v := strings.TrimSpace(traceParent); v != "" {
		carrier.Set(headerTraceParent, v)
	}
	if v := strings.TrimSpace(traceState); v != "" {
		carrier.Set(headerTraceState, v)
	}
	if len(carrier) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectHeaders writes traceparent/tracestate for an outbound request.
func InjectHeaders(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	propagator().Inject(ctx, propagation.HeaderCarrier(h))
}
