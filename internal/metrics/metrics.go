// Package metrics exposes Prometheus collectors for the dispatch layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	dispatchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch_layer",
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Total number of rate-limit retries performed.",
		},
		[]string{"endpoint"},
	)

	dispatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch_layer",
			Subsystem: "dispatch",
			Name:      "failures_total",
			Help:      "Total number of operations that settled with an error.",
		},
		[]string{"endpoint", "kind"},
	)

	refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dispatch_layer",
			Subsystem: "chainstate",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of chain-state refresh cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	refreshErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dispatch_layer",
			Subsystem: "chainstate",
			Name:      "refresh_errors_total",
			Help:      "Total number of failed chain-state refresh cycles.",
		},
	)
)

func init() {
	Registry.MustRegister(
		dispatchRetries,
		dispatchFailures,
		refreshDuration,
		refreshErrors,
	)
}

// DispatchObservable is the read-only view a dispatcher exposes for gauges.
type DispatchObservable interface {
	QueueLen() int
	Tokens() float64
	RefillRate() float64
}

// RegisterDispatcher exposes queue depth, available tokens, and refill rate
// for one dispatcher as gauges labeled with the endpoint.
func RegisterDispatcher(endpoint string, d DispatchObservable) {
	labels := prometheus.Labels{"endpoint": endpoint}

	Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dispatch_layer",
			Subsystem:   "dispatch",
			Name:        "queue_depth",
			Help:        "Current number of queued operations.",
			ConstLabels: labels,
		},
		func() float64 { return float64(d.QueueLen()) },
	))

	Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dispatch_layer",
			Subsystem:   "dispatch",
			Name:        "tokens_available",
			Help:        "Currently available token bucket permits.",
			ConstLabels: labels,
		},
		d.Tokens,
	))

	Registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "dispatch_layer",
			Subsystem:   "dispatch",
			Name:        "refill_rate",
			Help:        "Current adaptive refill rate in permits per second.",
			ConstLabels: labels,
		},
		d.RefillRate,
	))
}

// RecordRetry counts one rate-limit retry against endpoint.
func RecordRetry(endpoint string) {
	dispatchRetries.WithLabelValues(endpoint).Inc()
}

// RecordFailure counts a terminal dispatch failure of the given kind.
func RecordFailure(endpoint, kind string) {
	dispatchFailures.WithLabelValues(endpoint, kind).Inc()
}

// ObserveRefresh records one refresh cycle's duration in seconds.
func ObserveRefresh(seconds float64) {
	refreshDuration.Observe(seconds)
}

// RecordRefreshError counts a failed refresh cycle.
func RecordRefreshError() {
	refreshErrors.Inc()
}

// Handler returns an HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
