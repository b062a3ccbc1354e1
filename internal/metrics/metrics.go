// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepgate_submissions_total",
			Help: "Total number of flow submissions",
		},
		[]string{"verdict"},
	)

	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepgate_resolutions_total",
			Help: "Total number of flow resolutions",
		},
		[]string{"outcome", "source"},
	)

	NotifyFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stepgate_notify_failures_total",
			Help: "Total number of failed operator notifications",
		},
	)

	FallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stepgate_fallbacks_total",
			Help: "Total number of pending records synthesized for unknown flow ids",
		},
	)

	CallbacksDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepgate_callbacks_dropped_total",
			Help: "Total number of callback events dropped without a state change",
		},
		[]string{"cause"},
	)

	PendingFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stepgate_pending_flows",
			Help: "Number of flows currently awaiting a decision",
		},
	)
)

// ResolutionOutcome maps an approval decision onto the metric label.
func ResolutionOutcome(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
