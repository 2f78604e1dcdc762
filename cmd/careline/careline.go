// Package carelinecmder
package carelinecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/careline/cmd/careline/auth"
	chatcmder "github.com/papercomputeco/careline/cmd/careline/chat"
	configcmder "github.com/papercomputeco/careline/cmd/careline/config"
	replaycmder "github.com/papercomputeco/careline/cmd/careline/replay"
	servecmder "github.com/papercomputeco/careline/cmd/careline/serve"
	versioncmder "github.com/papercomputeco/careline/cmd/version"
)

const carelineLongDesc string = `careline is the command line client for the care team chat assistant.

Chat with the assistant:
  careline auth                Store your session token
  careline chat                Start an interactive chat
  careline replay <capture>    Reassemble a recorded stream

Run services using:
  careline serve gateway       Run the local development gateway`

const carelineShortDesc string = "careline - care team chat assistant"

func NewCarelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "careline",
		Short:         carelineShortDesc,
		Long:          carelineLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .careline/ config directory")

	// Add subcommands
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
