package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bidibot",
			Subsystem: "session",
			Name:      "opened_total",
			Help:      "Total number of sessions opened",
		},
	)

	SessionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bidibot",
			Subsystem: "session",
			Name:      "failures_total",
			Help:      "Total number of failed session lifecycle operations",
		},
		[]string{"phase"}, // "open" or "close"
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bidibot",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of currently open sessions",
		},
	)

	// Protocol command metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bidibot",
			Subsystem: "bidi",
			Name:      "commands_total",
			Help:      "Total number of BiDi commands by method and outcome",
		},
		[]string{"method", "outcome"}, // "success", "error", "timeout", "cancelled"
	)

	CommandLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bidibot",
			Subsystem: "bidi",
			Name:      "command_latency_seconds",
			Help:      "BiDi command round trip latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bidibot",
			Subsystem: "bidi",
			Name:      "events_dropped_total",
			Help:      "Total number of protocol events received without a subscriber",
		},
		[]string{"method"},
	)

	// Navigation metrics
	Navigations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bidibot",
			Subsystem: "nav",
			Name:      "operations_total",
			Help:      "Total number of navigation operations",
		},
		[]string{"operation", "result"}, // result: "success" or "failure"
	)
)

// Result labels a metric with success or failure.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
