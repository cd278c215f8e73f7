package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
)

var (
	registry = prometheus.NewRegistry()

	upstreamRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "property_agent",
		Name:      "upstream_requests_total",
		Help:      "Calls to external services by outcome.",
	}, []string{"service", "outcome"})

	upstreamLatency = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "property_agent",
		Name:      "upstream_request_seconds",
		Help:      "Latency of calls to external services.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

type statusCoder interface {
	HTTPStatusCode() int
}

// ObserveUpstream records one call to service that started at start.
func ObserveUpstream(service string, start time.Time, err error) {
	upstreamLatency.WithLabelValues(service).Observe(time.Since(start).Seconds())
	upstreamRequests.WithLabelValues(service, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() == http.StatusTooManyRequests {
		return OutcomeRateLimited
	}
	return OutcomeError
}

// Registry exposes the metrics registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// MetricsHandler serves the registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
