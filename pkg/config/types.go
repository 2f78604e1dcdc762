package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config represents the persistent careline configuration stored as
// config.toml in the .careline/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Gateway GatewayConfig `toml:"gateway"`
	Stream  StreamConfig  `toml:"stream"`
	Capture CaptureConfig `toml:"capture"`
	Serve   ServeConfig   `toml:"serve"`
	Chat    ChatConfig    `toml:"chat"`
}

// GatewayConfig holds the chat-completion gateway the client talks to.
type GatewayConfig struct {
	// URL is the gateway base URL (scheme + host + port).
	URL string `toml:"url,omitempty"`

	// Path is the chat endpoint path appended to URL.
	Path string `toml:"path,omitempty"`

	// Model is sent with each request when set.
	Model string `toml:"model,omitempty"`

	// Timeout bounds a whole chat turn, as a Go duration. Empty means none.
	Timeout string `toml:"timeout,omitempty"`
}

// Endpoint returns the full chat endpoint URL.
func (g GatewayConfig) Endpoint() string {
	return Endpoint(g.URL, g.Path)
}

// TimeoutDuration parses Timeout. An empty Timeout is zero.
func (g GatewayConfig) TimeoutDuration() (time.Duration, error) {
	if g.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(g.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid gateway.timeout: %w", err)
	}
	return d, nil
}

// StreamConfig tunes the stream reassembler.
type StreamConfig struct {
	MaxContinuationLines uint `toml:"max_continuation_lines,omitempty"`
	ReadSize             uint `toml:"read_size,omitempty"`
}

// CaptureConfig holds stream capture settings.
type CaptureConfig struct {
	// Dir is where "careline chat --record" writes captures. Empty means a
	// captures/ directory inside .careline/.
	Dir string `toml:"dir,omitempty"`
}

// ServeConfig holds development gateway settings.
type ServeConfig struct {
	Listen    string `toml:"listen,omitempty"`
	JWTSecret string `toml:"jwt_secret,omitempty"`

	// RateLimit is the number of chat requests allowed per token per minute.
	RateLimit uint `toml:"rate_limit,omitempty"`
}

// ChatConfig holds interactive chat settings.
type ChatConfig struct {
	RenderMarkdown bool `toml:"render_markdown"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"gateway.url": {
		get: func(c *Config) string { return c.Gateway.URL },
		set: func(c *Config, v string) error { c.Gateway.URL = v; return nil },
	},
	"gateway.path": {
		get: func(c *Config) string { return c.Gateway.Path },
		set: func(c *Config, v string) error { c.Gateway.Path = v; return nil },
	},
	"gateway.model": {
		get: func(c *Config) string { return c.Gateway.Model },
		set: func(c *Config, v string) error { c.Gateway.Model = v; return nil },
	},
	"gateway.timeout": {
		get: func(c *Config) string { return c.Gateway.Timeout },
		set: func(c *Config, v string) error {
			if v != "" {
				if _, err := time.ParseDuration(v); err != nil {
					return fmt.Errorf("invalid value for gateway.timeout: %w", err)
				}
			}
			c.Gateway.Timeout = v
			return nil
		},
	},
	"stream.max_continuation_lines": {
		get: func(c *Config) string { return formatUint(c.Stream.MaxContinuationLines) },
		set: func(c *Config, v string) error {
			return parseUint("stream.max_continuation_lines", v, &c.Stream.MaxContinuationLines)
		},
	},
	"stream.read_size": {
		get: func(c *Config) string { return formatUint(c.Stream.ReadSize) },
		set: func(c *Config, v string) error {
			return parseUint("stream.read_size", v, &c.Stream.ReadSize)
		},
	},
	"capture.dir": {
		get: func(c *Config) string { return c.Capture.Dir },
		set: func(c *Config, v string) error { c.Capture.Dir = v; return nil },
	},
	"serve.listen": {
		get: func(c *Config) string { return c.Serve.Listen },
		set: func(c *Config, v string) error { c.Serve.Listen = v; return nil },
	},
	"serve.jwt_secret": {
		get: func(c *Config) string { return c.Serve.JWTSecret },
		set: func(c *Config, v string) error { c.Serve.JWTSecret = v; return nil },
	},
	"serve.rate_limit": {
		get: func(c *Config) string { return formatUint(c.Serve.RateLimit) },
		set: func(c *Config, v string) error {
			var n uint
			if err := parseUint("serve.rate_limit", v, &n); err != nil {
				return err
			}
			if n > MaxRateLimit {
				return fmt.Errorf("invalid value for serve.rate_limit: %d exceeds %d per minute", n, MaxRateLimit)
			}
			c.Serve.RateLimit = n
			return nil
		},
	},
	"chat.render_markdown": {
		get: func(c *Config) string { return strconv.FormatBool(c.Chat.RenderMarkdown) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for chat.render_markdown: %w", err)
			}
			c.Chat.RenderMarkdown = b
			return nil
		},
	},
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func parseUint(key, v string, dst *uint) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = uint(n)
	return nil
}
