package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --gateway
// on both "careline chat" and "careline auth").
type Flag struct {
	// Name is the long flag name (e.g. "gateway").
	Name string

	// Shorthand is the one-letter short flag (e.g. "g"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "gateway.url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddBoolFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagGateway          = "gateway"
	FlagGatewayPath      = "gateway-path"
	FlagModel            = "model"
	FlagTimeout          = "timeout"
	FlagMaxContinuations = "max-continuation-lines"
	FlagCaptureDir       = "capture-dir"
	FlagMarkdown         = "markdown"
	FlagListen           = "listen"
	FlagJWTSecret        = "jwt-secret"
	FlagRateLimit        = "rate-limit"
)

// Flags is the registry of flags shared by careline commands.
var Flags = FlagSet{
	FlagGateway:          {Name: "gateway", Shorthand: "g", ViperKey: "gateway.url", Description: "Chat gateway base URL"},
	FlagGatewayPath:      {Name: "gateway-path", ViperKey: "gateway.path", Description: "Chat endpoint path on the gateway"},
	FlagModel:            {Name: "model", Shorthand: "m", ViperKey: "gateway.model", Description: "Model to request (gateway default when empty)"},
	FlagTimeout:          {Name: "timeout", Shorthand: "t", ViperKey: "gateway.timeout", Description: "Time limit for one reply, e.g. 2m (none when empty)"},
	FlagMaxContinuations: {Name: "max-continuation-lines", ViperKey: "stream.max_continuation_lines", Description: "Lines that may be joined onto an incomplete JSON payload"},
	FlagCaptureDir:       {Name: "capture-dir", ViperKey: "capture.dir", Description: "Directory for stream captures"},
	FlagMarkdown:         {Name: "markdown", ViperKey: "chat.render_markdown", Description: "Render finished replies as markdown"},
	FlagListen:           {Name: "listen", Shorthand: "l", ViperKey: "serve.listen", Description: "Address for the gateway to listen on"},
	FlagJWTSecret:        {Name: "jwt-secret", ViperKey: "serve.jwt_secret", Description: "HS256 secret for bearer tokens (any token accepted when empty)"},
	FlagRateLimit:        {Name: "rate-limit", ViperKey: "serve.rate_limit", Description: "Chat requests allowed per token per minute (0 disables)"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaultViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	return defaultViper().GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	return defaultViper().GetUint(viperKey)
}

// defaultBool returns the default bool value for a viper key from NewDefaultConfig.
func defaultBool(viperKey string) bool {
	return defaultViper().GetBool(viperKey)
}
