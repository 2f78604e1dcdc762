// Package servecmder provides the serve command with subcommands for running services.
package servecmder

import (
	"github.com/spf13/cobra"

	gatewaycmder "github.com/papercomputeco/careline/cmd/careline/serve/gateway"
)

const serveLongDesc string = `Run careline services.

Use subcommands to run individual services:
  careline serve gateway    Run the local development chat gateway`

const serveShortDesc string = "Run careline services"

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
	}

	cmd.AddCommand(gatewaycmder.NewGatewayCmd())

	return cmd
}
