// Package otel turns bus events into OpenTelemetry spans.
//
// One request produces an http.request span with a graphql.request child.
// Declared operations and backend gRPC calls hang off the GraphQL span.
// Spans are paired by request id, or by the event ID when a request can
// have several in flight.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	config "github.com/hanpama/opgraph/internal/config"
	eventbus "github.com/hanpama/opgraph/internal/eventbus"
	events "github.com/hanpama/opgraph/internal/events"
	reqid "github.com/hanpama/opgraph/internal/reqid"
)

const instrumentationName = "opgraph"

// Setup exports traces to cfg.Endpoint over OTLP/gRPC and instruments b.
// Without an endpoint nothing is configured.
func Setup(ctx context.Context, cfg config.OTel, b *eventbus.Bus) (shutdown func(context.Context) error, err error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}
	service := cfg.Service
	if service == "" {
		service = instrumentationName
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Instrument(b, tp.Tracer(instrumentationName))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Instrument records the events of b as spans of tracer.
func Instrument(b *eventbus.Bus, tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register(b)
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // request id -> trace.Span
	gqlSpans  sync.Map // request id -> trace.Span
	opSpans   sync.Map // operation id -> trace.Span
	grpcSpans sync.Map // call id -> trace.Span
}

// parent returns ctx carrying the innermost span open for its request.
func (s *subscriber) parent(ctx context.Context, maps ...*sync.Map) context.Context {
	rid, ok := reqid.FromContext(ctx)
	if !ok {
		return ctx
	}
	for _, m := range maps {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func end(m *sync.Map, key string, fn func(trace.Span)) {
	v, ok := m.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	fn(span)
	span.End()
}

func (s *subscriber) register(b *eventbus.Bus) func() {
	offs := []func(){
		eventbus.On(b, func(ctx context.Context, e events.HTTPStart) {
			rid, ok := reqid.FromContext(ctx)
			if !ok {
				return
			}
			_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
				attribute.String("request.id", rid),
			)
			s.httpSpans.Store(rid, span)
		}),
		eventbus.On(b, func(ctx context.Context, e events.HTTPFinish) {
			rid, _ := reqid.FromContext(ctx)
			end(&s.httpSpans, rid, func(span trace.Span) {
				span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
				if e.Status >= 500 {
					span.SetStatus(otelcodes.Error, "")
				}
			})
		}),

		eventbus.On(b, func(ctx context.Context, e events.GraphQLStart) {
			rid, ok := reqid.FromContext(ctx)
			if !ok {
				return
			}
			_, span := s.tracer.Start(s.parent(ctx, &s.httpSpans), "graphql.request")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
			)
			s.gqlSpans.Store(rid, span)
		}),
		eventbus.On(b, func(ctx context.Context, e events.GraphQLFinish) {
			rid, _ := reqid.FromContext(ctx)
			end(&s.gqlSpans, rid, func(span trace.Span) {
				span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
				if len(e.Errors) > 0 {
					span.SetStatus(otelcodes.Error, e.Errors[0].Error())
				}
			})
		}),

		eventbus.On(b, func(ctx context.Context, e events.OperationStart) {
			_, span := s.tracer.Start(s.parent(ctx, &s.gqlSpans, &s.httpSpans), e.Kind+" "+e.Name)
			span.SetAttributes(
				attribute.String("opgraph.operation.kind", e.Kind),
				attribute.String("opgraph.operation.name", e.Name),
				attribute.String("graphql.field.name", e.Field),
			)
			s.opSpans.Store(e.ID, span)
		}),
		eventbus.On(b, func(_ context.Context, e events.OperationFinish) {
			end(&s.opSpans, e.ID, func(span trace.Span) {
				if e.Err == nil {
					return
				}
				span.RecordError(e.Err)
				span.SetAttributes(attribute.Bool("opgraph.operation.internal", e.Internal))
				span.SetStatus(otelcodes.Error, e.Err.Error())
			})
		}),

		eventbus.On(b, func(ctx context.Context, e events.GRPCClientStart) {
			_, span := s.tracer.Start(s.parent(ctx, &s.gqlSpans, &s.httpSpans), "grpc.client", trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				semconv.RPCSystemGRPC,
				semconv.RPCServiceKey.String(e.Service),
				semconv.RPCMethodKey.String(e.Method),
				attribute.String("net.peer.name", e.Target),
			)
			s.grpcSpans.Store(e.ID, span)
		}),
		eventbus.On(b, func(_ context.Context, e events.GRPCClientFinish) {
			end(&s.grpcSpans, e.ID, func(span trace.Span) {
				span.SetAttributes(semconv.RPCGRPCStatusCodeKey.Int(int(e.Code)))
				if e.Err != nil {
					span.RecordError(e.Err)
					span.SetStatus(otelcodes.Error, e.Code.String())
				}
			})
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}
