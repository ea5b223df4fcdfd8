// Package metrics exports Prometheus metrics derived from the engine's
// lifecycle events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/opgraph/internal/eventbus"
	events "github.com/hanpama/opgraph/internal/events"
)

const namespace = "opgraph"

type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	GraphQLRequests     *prometheus.CounterVec
	GraphQLDuration     *prometheus.HistogramVec
	OperationCalls      *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	GRPCClientCalls     *prometheus.CounterVec
	GRPCClientDurations *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		}, []string{"method", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		GraphQLRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "requests_total",
			Help:      "Total number of executed GraphQL requests by operation type and outcome",
		}, []string{"type", "status"}),
		GraphQLDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graphql",
			Name:      "request_duration_seconds",
			Help:      "Duration of GraphQL execution in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		OperationCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "calls_total",
			Help:      "Total number of declared operation invocations by outcome",
		}, []string{"kind", "name", "status"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "duration_seconds",
			Help:      "Duration of declared operation invocations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "name"}),
		GRPCClientCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc_client",
			Name:      "calls_total",
			Help:      "Total number of outgoing gRPC calls by method and code",
		}, []string{"service", "method", "code"}),
		GRPCClientDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grpc_client",
			Name:      "call_duration_seconds",
			Help:      "Duration of outgoing gRPC calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),
	}
}

// Subscribe feeds m from the finish events published on b.
func (m *Metrics) Subscribe(b *eventbus.Bus) (unsubscribe func()) {
	offs := []func(){
		eventbus.On(b, func(_ context.Context, e events.HTTPFinish) {
			m.HTTPRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.HTTPDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.On(b, func(_ context.Context, e events.GraphQLFinish) {
			status := "ok"
			if len(e.Errors) > 0 {
				status = "error"
			}
			m.GraphQLRequests.WithLabelValues(e.OperationType, status).Inc()
			m.GraphQLDuration.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
		eventbus.On(b, func(_ context.Context, e events.OperationFinish) {
			m.OperationCalls.WithLabelValues(e.Kind, e.Name, outcome(e)).Inc()
			m.OperationDuration.WithLabelValues(e.Kind, e.Name).Observe(e.Duration.Seconds())
		}),
		eventbus.On(b, func(_ context.Context, e events.GRPCClientFinish) {
			m.GRPCClientCalls.WithLabelValues(e.Service, e.Method, e.Code.String()).Inc()
			m.GRPCClientDurations.WithLabelValues(e.Service, e.Method).Observe(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func outcome(e events.OperationFinish) string {
	switch {
	case e.Err == nil:
		return "ok"
	case e.Internal:
		return "internal_error"
	}
	return "error"
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
