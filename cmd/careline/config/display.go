package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/careline/pkg/cliui"
	"github.com/papercomputeco/careline/pkg/config"
)

const masked = "********"

// secretKeys are never echoed back unless asked for.
var secretKeys = map[string]bool{
	"serve.jwt_secret": true,
}

func displayValue(key, value string, reveal bool) string {
	switch {
	case value == "":
		return cliui.DimStyle.Render("<not set>")
	case secretKeys[key] && !reveal:
		return cliui.DimStyle.Render(masked)
	default:
		return cliui.ValueStyle.Render(value)
	}
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func printTarget(out io.Writer, cfger *config.Configer) {
	fmt.Fprintf(out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Config file:"),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
}

// completeKeys completes the first argument with config key names.
func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
