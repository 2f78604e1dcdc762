package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/papercomputeco/careline/pkg/config"
	"github.com/papercomputeco/careline/pkg/logger"
	"github.com/papercomputeco/careline/pkg/telemetry"
)

const (
	// ChatPath is the OpenAI-compatible chat completion route.
	ChatPath = "/v1/chat/completions"

	// FunctionChatPath is the hosted-function route used by the app.
	FunctionChatPath = "/functions/v1/chat"
)

// Server is the development gateway.
type Server struct {
	config  Config
	logger  *slog.Logger
	app     *fiber.App
	metrics *telemetry.GatewayMetrics
	limiter *limiter
}

// NewServer creates a gateway server and registers its routes.
func NewServer(config Config) (*Server, error) {
	if config.ChunkWords < 0 {
		return nil, fmt.Errorf("chunk words must not be negative, got %d", config.ChunkWords)
	}
	if config.ChunkWords == 0 {
		config.ChunkWords = defaultChunkWords
	}
	if config.ForceStatus != 0 && (config.ForceStatus < 400 || config.ForceStatus > 599) {
		return nil, fmt.Errorf("forced status must be an HTTP error status, got %d", config.ForceStatus)
	}
	if config.RateLimit > cfg.MaxRateLimit {
		return nil, fmt.Errorf("rate limit must be at most %d per minute, got %d", cfg.MaxRateLimit, config.RateLimit)
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		logger:  config.Logger,
		app:     app,
		metrics: telemetry.NewGatewayMetrics(config.Registry),
		limiter: newLimiter(config.RateLimit),
	}

	app.Use(s.countRequests)

	app.Get("/ping", s.handlePing)
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.Handler(config.Registry)))
	app.Post(ChatPath, s.handleChat)
	app.Post(FunctionChatPath, s.handleChat)

	return s, nil
}

// Run starts the gateway on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting development gateway",
		"listen", s.config.ListenAddr,
		"jwt", s.config.JWTSecret != "",
		"rate_limit", s.config.RateLimit,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the gateway using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting development gateway",
		"listen", listener.Addr().String(),
	)
	return s.app.Listener(listener)
}

// Shutdown gracefully shuts down the gateway.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Test sends req through the app without a network listener.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}

// countRequests records every request once its handler returned.
func (s *Server) countRequests(c *fiber.Ctx) error {
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.metrics.Request(c.Route().Path, status)

	return err
}
