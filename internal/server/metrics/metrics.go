// Package metrics holds the Prometheus collectors of the storage server and
// small helpers to update them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "weavesync"
	subsystem = "storage"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	wbosWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "wbos_written_total",
			Help:      "Records stored by PUT and POST",
		},
	)

	wbosFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "wbos_failed_total",
			Help:      "Records rejected inside batch writes",
		},
	)

	wbosExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "wbos_expired_total",
			Help:      "Records purged because their ttl ran out",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(route, method string, status int, d time.Duration) {
	requestsTotal.WithLabelValues(route, method, statusLabel(status)).Inc()
	requestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// AddWritten counts stored records.
func AddWritten(n int) {
	if n > 0 {
		wbosWritten.Add(float64(n))
	}
}

// AddFailed counts records rejected in a batch.
func AddFailed(n int) {
	if n > 0 {
		wbosFailed.Add(float64(n))
	}
}

// AddExpired counts records removed by the ttl sweep.
func AddExpired(n int64) {
	if n > 0 {
		wbosExpired.Add(float64(n))
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
