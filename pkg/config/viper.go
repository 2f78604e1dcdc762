package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/careline/pkg/dotdir"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "CARELINE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CARELINE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CARELINE_GATEWAY_URL, CARELINE_SERVE_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	v.AddConfigPath(target)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: CARELINE_GATEWAY_URL, CARELINE_SERVE_JWT_SECRET, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Gateway
	v.SetDefault("gateway.url", d.Gateway.URL)
	v.SetDefault("gateway.path", d.Gateway.Path)
	v.SetDefault("gateway.model", d.Gateway.Model)
	v.SetDefault("gateway.timeout", d.Gateway.Timeout)

	// Stream
	v.SetDefault("stream.max_continuation_lines", d.Stream.MaxContinuationLines)
	v.SetDefault("stream.read_size", d.Stream.ReadSize)

	// Capture
	v.SetDefault("capture.dir", d.Capture.Dir)

	// Serve
	v.SetDefault("serve.listen", d.Serve.Listen)
	v.SetDefault("serve.jwt_secret", d.Serve.JWTSecret)
	v.SetDefault("serve.rate_limit", d.Serve.RateLimit)

	// Chat
	v.SetDefault("chat.render_markdown", d.Chat.RenderMarkdown)
}
