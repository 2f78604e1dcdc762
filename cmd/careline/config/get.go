package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/careline/pkg/cliui"
	"github.com/papercomputeco/careline/pkg/config"
)

const getLongDesc string = `Get a configuration value.

Prints the effective value of the given key from config.toml in the
.careline/ directory, with defaults filled in. Secrets are masked unless
--reveal is given.

Examples:
  careline config get gateway.url
  careline config get stream.max_continuation_lines
  careline config get serve.jwt_secret --reveal`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:               "get <key>",
		Short:             getShortDesc,
		Long:              getLongDesc,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runGet(cmd.OutOrStdout(), args[0], configDir, reveal)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret values in clear text")

	return cmd
}

func runGet(out io.Writer, key, configDir string, reveal bool) error {
	if !config.IsValidConfigKey(key) {
		return unknownKeyError(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(out, cfger)

	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s  %s\n\n", cliui.KeyStyle.Render(key), displayValue(key, value, reveal))
	return nil
}
