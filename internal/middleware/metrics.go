package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks recorder activity. A nil registerer wires the metrics to a
// throwaway registry so instrumentation stays optional.
type Metrics struct {
	RequestsTraced   *prometheus.CounterVec
	CassettesWritten prometheus.Counter
	WriteFailures    prometheus.Counter
	RequestDuration  prometheus.Histogram
	UnconsumedEvents prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestsTraced: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "tapedeck_requests_traced_total",
			Help: "Requests that entered a record or replay session.",
		}, []string{"mode"}),

		CassettesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tapedeck_cassettes_written_total",
			Help: "Cassette files successfully persisted.",
		}),

		WriteFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tapedeck_cassette_write_failures_total",
			Help: "Cassette persistence attempts that failed.",
		}),

		RequestDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "tapedeck_traced_request_duration_seconds",
			Help:    "Latency of traced requests, including capture overhead.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		UnconsumedEvents: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "tapedeck_replay_unconsumed_events_total",
			Help: "Recorded events left unconsumed at the end of a replayed request.",
		}),
	}
}
