// Package configcmder provides the config command for managing persistent
// careline configuration stored in the .careline/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent careline configuration.

Configuration is stored as config.toml in the .careline/ directory and provides
default values for command flags. CLI flags and CARELINE_ environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  gateway.url, gateway.path, gateway.model, gateway.timeout,
  stream.max_continuation_lines, stream.read_size,
  capture.dir,
  serve.listen, serve.jwt_secret, serve.rate_limit,
  chat.render_markdown

Use subcommands to get, set, or list configuration values:
  careline config set <key> <value>    Set a configuration value
  careline config get <key>            Get a configuration value
  careline config list                 List all configuration values

Examples:
  careline config set gateway.url https://example.supabase.co
  careline config set gateway.path /functions/v1/chat
  careline config get gateway.url
  careline config list`

const configShortDesc string = "Manage persistent careline configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
