// Package gateway provides a local development chat gateway. It speaks the
// same chat-completion SSE wire format as the hosted gateway and streams
// scripted replies, so the client can be exercised without a model upstream.
package gateway

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultModel is reported in chunks when the request names no model.
	DefaultModel = "careline-dev"

	defaultChunkWords = 1
)

// Config is the development gateway configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// JWTSecret enables HS256 validation of bearer tokens. When empty any
	// non-empty bearer token is accepted.
	JWTSecret string

	// RateLimit is the number of chat requests allowed per token per minute.
	// Zero disables rate limiting.
	RateLimit uint

	// Reply is the scripted assistant reply. When empty a reply quoting the
	// last user message is generated.
	Reply string

	// ChunkWords is the number of words carried by each streamed delta.
	ChunkWords int

	// KeepAlive writes an SSE comment line before every delta.
	KeepAlive bool

	// Delay is slept between deltas.
	Delay time.Duration

	// ForceStatus, when non-zero, makes every authenticated chat request fail
	// with that HTTP status.
	ForceStatus int

	Logger *slog.Logger

	// Registry collects gateway metrics and backs GET /metrics. A fresh
	// registry is created when nil.
	Registry *prometheus.Registry
}
