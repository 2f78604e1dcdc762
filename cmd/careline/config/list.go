package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/careline/pkg/cliui"
	"github.com/papercomputeco/careline/pkg/config"
)

const listLongDesc string = `List all configuration values.

Prints every key with its effective value, grouped by TOML section. Keys
missing from config.toml show their defaults. Secrets are masked unless
--reveal is given.

Examples:
  careline config list
  careline config list --reveal`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir, reveal)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret values in clear text")

	return cmd
}

func runList(out io.Writer, configDir string, reveal bool) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(out, cfger)

	keys := config.ValidConfigKeys()
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}

	section := ""
	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}

		if s := sectionOf(key); s != section {
			if section != "" {
				fmt.Fprintln(out)
			}
			section = s
			fmt.Fprintf(out, "  %s\n", cliui.HeaderStyle.Render("["+s+"]"))
		}
		fmt.Fprintf(out, "  %s  %s\n",
			cliui.KeyStyle.Render(fmt.Sprintf("%-*s", width, key)),
			displayValue(key, value, reveal),
		)
	}
	fmt.Fprintln(out)

	return nil
}

func sectionOf(key string) string {
	section, _, _ := strings.Cut(key, ".")
	return section
}
