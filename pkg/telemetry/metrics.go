// Package telemetry provides Prometheus collectors for the chat streaming path
// and the development gateway. Every method is safe to call on a nil receiver,
// so metrics stay optional for callers.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/careline/pkg/sse"
)

// StreamBuckets are histogram buckets for model response streams, from 100ms
// to 2 minutes.
var StreamBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Stream outcomes used as the "outcome" label.
const (
	OutcomeDone      = "done"
	OutcomeEOF       = "eof"
	OutcomeReadError = "read_error"
)

// Metrics records client-side stream processing.
type Metrics struct {
	streams       *prometheus.CounterVec
	active        prometheus.Gauge
	duration      prometheus.Histogram
	fragments     prometheus.Counter
	bytes         prometheus.Counter
	skipped       *prometheus.CounterVec
	continuations prometheus.Counter
	failures      *prometheus.CounterVec
}

// NewMetrics creates the client collectors and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		streams: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careline_streams_total",
				Help: "Completed chat streams by outcome",
			},
			[]string{"outcome"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "careline_streams_active",
				Help: "Chat streams currently being read",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "careline_stream_duration_seconds",
				Help:    "Time from first read to end of stream",
				Buckets: StreamBuckets,
			},
		),
		fragments: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "careline_stream_fragments_total",
				Help: "Content fragments extracted from streams",
			},
		),
		bytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "careline_stream_bytes_total",
				Help: "Raw bytes read from stream bodies",
			},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careline_stream_skipped_lines_total",
				Help: "Stream lines that produced no fragment, by reason",
			},
			[]string{"reason"},
		),
		continuations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "careline_stream_continuation_lines_total",
				Help: "Lines joined onto an incomplete JSON payload",
			},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careline_request_failures_total",
				Help: "Chat requests that failed, by error kind",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.streams,
		m.active,
		m.duration,
		m.fragments,
		m.bytes,
		m.skipped,
		m.continuations,
		m.failures,
	)

	return m
}

// StreamStarted marks a stream as active.
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// StreamFinished records the final counters of a stream and marks it inactive.
func (m *Metrics) StreamFinished(outcome string, stats sse.Stats, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.active.Dec()
	m.streams.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.fragments.Add(float64(stats.Fragments))
	m.bytes.Add(float64(stats.Bytes))
	m.continuations.Add(float64(stats.Continuations))

	m.skipped.WithLabelValues("blank").Add(float64(stats.Blank))
	m.skipped.WithLabelValues("comment").Add(float64(stats.Comments))
	m.skipped.WithLabelValues("foreign").Add(float64(stats.Foreign))
	m.skipped.WithLabelValues("malformed").Add(float64(stats.Malformed))
}

// Failure counts a failed request by kind.
func (m *Metrics) Failure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

// Handler exposes the metrics gathered by g in the Prometheus text format.
// A nil g uses the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
