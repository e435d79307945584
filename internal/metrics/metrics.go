// Package metrics exposes the coordinator's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FirstTokenSeconds tracks time from dispatch to first perceptible output.
	FirstTokenSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "turnwire",
		Name:      "first_token_seconds",
		Help:      "Time from request dispatch to first visible output.",
		Buckets:   prometheus.DefBuckets,
	})

	// SlowFirstTokens counts responses whose first token exceeded the threshold.
	SlowFirstTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "turnwire",
		Name:      "first_token_slow_total",
		Help:      "Responses whose first token latency exceeded the slow threshold.",
	})

	// TurnsTotal counts finished turns by outcome.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turnwire",
		Name:      "turns_total",
		Help:      "Finished turns by outcome.",
	}, []string{"outcome"})

	// EventsTotal counts stream events by wire type.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turnwire",
		Name:      "events_total",
		Help:      "Stream events received by wire type.",
	}, []string{"type"})

	// ToolExecutions counts tool runs by final status.
	ToolExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turnwire",
		Name:      "tool_executions_total",
		Help:      "Tool executions observed on the stream by final status.",
	}, []string{"status"})

	// DroppedEnvelopes counts envelopes dropped by slow feed consumers.
	DroppedEnvelopes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turnwire",
		Name:      "dropped_envelopes_total",
		Help:      "Envelopes dropped because a consumer buffer was full.",
	}, []string{"consumer"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
