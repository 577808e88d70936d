// Package metrics exposes the Prometheus instruments shared by the HTTP layer
// and the engine adapter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdfe_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mdfe_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	engineCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdfe_engine_calls_total",
		Help: "Calls to the signing/transmission engine by operation and outcome.",
	}, []string{"operacao", "resultado"})
)

func RecordHTTPRequest(method, route, status string, seconds float64) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}

func RecordEngineCall(operacao, resultado string) {
	engineCalls.WithLabelValues(operacao, resultado).Inc()
}
