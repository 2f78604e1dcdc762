package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records development gateway traffic.
type GatewayMetrics struct {
	requests    *prometheus.CounterVec
	rateLimited prometheus.Counter
	active      prometheus.Gauge
	chunks      prometheus.Counter
}

// NewGatewayMetrics creates the gateway collectors and registers them with
// reg. A nil reg uses the default registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &GatewayMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careline_gateway_requests_total",
				Help: "Gateway requests by route and status",
			},
			[]string{"route", "status"},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "careline_gateway_ratelimit_rejected_total",
				Help: "Requests rejected by the per-token rate limiter",
			},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "careline_gateway_streams_active",
				Help: "Streams currently being written",
			},
		),
		chunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "careline_gateway_chunks_sent_total",
				Help: "SSE data lines written to clients",
			},
		),
	}

	reg.MustRegister(m.requests, m.rateLimited, m.active, m.chunks)

	return m
}

// Request counts a finished request.
func (m *GatewayMetrics) Request(route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// RateLimited counts a rejected request.
func (m *GatewayMetrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// StreamOpened marks a stream as active.
func (m *GatewayMetrics) StreamOpened() {
	if m == nil {
		return
	}
	m.active.Inc()
}

// StreamClosed marks a stream as no longer active.
func (m *GatewayMetrics) StreamClosed() {
	if m == nil {
		return
	}
	m.active.Dec()
}

// ChunkSent counts one written data line.
func (m *GatewayMetrics) ChunkSent() {
	if m == nil {
		return
	}
	m.chunks.Inc()
}
