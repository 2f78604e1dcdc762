package config

const (
	defaultGatewayURL  = "http://localhost:8090"
	defaultGatewayPath = "/v1/chat/completions"

	defaultMaxContinuationLines = 8
	defaultReadSize             = 4096

	defaultServeListen = ":8090"
	defaultRateLimit   = 30
)

// MaxRateLimit bounds serve.rate_limit, in requests per minute. Above it the
// per-request refill interval drops below a millisecond.
const MaxRateLimit = 60000

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Gateway: GatewayConfig{
			URL:  defaultGatewayURL,
			Path: defaultGatewayPath,
		},
		Stream: StreamConfig{
			MaxContinuationLines: defaultMaxContinuationLines,
			ReadSize:             defaultReadSize,
		},
		Serve: ServeConfig{
			Listen:    defaultServeListen,
			RateLimit: defaultRateLimit,
		},
		Chat: ChatConfig{
			RenderMarkdown: true,
		},
	}
}
