// Package gatewaycmder provides the development gateway server command.
package gatewaycmder

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/careline/pkg/config"
	"github.com/papercomputeco/careline/pkg/gateway"
	"github.com/papercomputeco/careline/pkg/logger"
)

type gatewayCommander struct {
	listen    string
	jwtSecret string
	rateLimit uint

	reply       string
	chunkWords  int
	keepAlive   bool
	delay       time.Duration
	forceStatus int

	debug    bool
	jsonLogs bool
	logger   *slog.Logger
}

const gatewayLongDesc string = `Run the local development chat gateway.

The gateway speaks the same chat completion SSE format as the hosted gateway
and streams a scripted reply, split into word-sized deltas, followed by
"data: [DONE]". It serves:

  POST /v1/chat/completions    OpenAI compatible chat completions
  POST /functions/v1/chat      Hosted function path used by the app
  GET  /ping                   Health check
  GET  /metrics                Prometheus metrics

Bearer tokens are validated as HS256 JWTs when a secret is configured;
otherwise any non-empty token is accepted. Failures can be simulated with
--rate-limit and --force-status.`

const gatewayShortDesc string = "Run the development chat gateway"

func NewGatewayCmd() *cobra.Command {
	cmder := &gatewayCommander{}

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: gatewayShortDesc,
		Long:  gatewayLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagListen,
				config.FlagJWTSecret,
				config.FlagRateLimit,
			})
			cmder.listen = v.GetString("serve.listen")
			cmder.jwtSecret = v.GetString("serve.jwt_secret")
			cmder.rateLimit = v.GetUint("serve.rate_limit")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagJWTSecret, &cmder.jwtSecret)
	config.AddUintFlag(cmd, config.Flags, config.FlagRateLimit, &cmder.rateLimit)
	cmd.Flags().StringVar(&cmder.reply, "reply", "", "Scripted reply text (default: quote the last user message)")
	cmd.Flags().IntVar(&cmder.chunkWords, "chunk-size", 1, "Words per streamed delta")
	cmd.Flags().BoolVar(&cmder.keepAlive, "keepalive", false, "Write an SSE comment before every delta")
	cmd.Flags().DurationVar(&cmder.delay, "delay", 40*time.Millisecond, "Pause between deltas")
	cmd.Flags().IntVar(&cmder.forceStatus, "force-status", 0, "Fail every chat request with this HTTP status")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write JSON logs")

	return cmd
}

func (c *gatewayCommander) run() error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithJSON(c.jsonLogs),
		logger.WithPrefix("gateway"),
	)

	server, err := gateway.NewServer(gateway.Config{
		ListenAddr:  c.listen,
		JWTSecret:   c.jwtSecret,
		RateLimit:   c.rateLimit,
		Reply:       c.reply,
		ChunkWords:  c.chunkWords,
		KeepAlive:   c.keepAlive,
		Delay:       c.delay,
		ForceStatus: c.forceStatus,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}
