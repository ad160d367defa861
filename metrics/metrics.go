// Package metrics contains the Prometheus collectors for the notifier
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry contains all the notifier's collectors
var Registry = prometheus.NewRegistry()

// Passes counts check passes by trigger ("scheduled" or "manual") and result ("ok" or "error")
var Passes = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "rss_notifier_passes_total",
	Help: "Number of check passes completed",
}, []string{"trigger", "result"})

// PassesSkipped counts timer fires dropped because a pass was still running
var PassesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "rss_notifier_passes_skipped_total",
	Help: "Number of scheduled passes skipped because another pass was running",
})

// PassDuration observes the duration of check passes
var PassDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "rss_notifier_pass_duration_seconds",
	Help:    "Duration of check passes",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
}, []string{"trigger"})

// FetchErrors counts feeds skipped in a pass, by kind ("fetch" or "parse")
var FetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "rss_notifier_fetch_errors_total",
	Help: "Number of feeds that could not be fetched or parsed",
}, []string{"kind"})

// Deliveries counts delivery attempts by result ("ok" or "error")
var Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "rss_notifier_deliveries_total",
	Help: "Number of notification delivery attempts",
}, []string{"result"})

func init() {
	Registry.MustRegister(Passes, PassesSkipped, PassDuration, FetchErrors, Deliveries)
}

// Handler returns the HTTP handler that exposes the metrics
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
