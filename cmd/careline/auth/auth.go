// Package authcmder provides the auth command for storing the session token.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/careline/pkg/cliui"
	"github.com/papercomputeco/careline/pkg/config"
	"github.com/papercomputeco/careline/pkg/credentials"
	"github.com/papercomputeco/careline/pkg/utils"
)

const authLongDesc string = `Store the session token used to talk to the chat gateway.

The token is the bearer token of your signed-in session. It is stored in
credentials.toml in the .careline/ directory, keyed by gateway URL. The
CARELINE_TOKEN environment variable overrides the stored token.

When the token is a JWT its expiry is shown; an expired token is rejected
before any request is sent.

Examples:
  careline auth                  Prompt for the session token
  careline auth --show           Show the stored token and its expiry
  careline auth --remove         Remove the stored token
  echo $TOKEN | careline auth    Pipe the token from stdin`

const authShortDesc string = "Store the session token for the chat gateway"

type authCommander struct {
	configDir string
	gateway   string

	in  io.Reader
	out io.Writer

	now func() time.Time
}

func NewAuthCmd() *cobra.Command {
	cmder := &authCommander{now: time.Now}
	var showFlag, removeFlag bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagGateway})
			cmder.gateway = v.GetString("gateway.url")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()

			mgr, err := credentials.NewManager(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading credentials: %w", err)
			}

			switch {
			case removeFlag:
				return cmder.runRemove(mgr)
			case showFlag:
				return cmder.runShow(mgr)
			default:
				return cmder.runAuth(mgr)
			}
		},
	}

	var gateway string
	config.AddStringFlag(cmd, config.Flags, config.FlagGateway, &gateway)
	cmd.Flags().BoolVar(&showFlag, "show", false, "Show the stored token and its expiry")
	cmd.Flags().BoolVar(&removeFlag, "remove", false, "Remove the stored token")

	return cmd
}

func (c *authCommander) runAuth(mgr *credentials.Manager) error {
	token, err := c.readToken()
	if err != nil {
		return err
	}

	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return errors.New("session token cannot be empty")
	}

	if credentials.TokenExpired(token, c.now()) {
		return errors.New("session token is already expired, sign in again")
	}

	if err := mgr.SetToken(c.gateway, token); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Stored session token for %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(c.gateway),
	)
	c.printExpiry(token)
	fmt.Fprintln(c.out)

	return nil
}

func (c *authCommander) runShow(mgr *credentials.Manager) error {
	token, err := mgr.GetToken(c.gateway)
	if err != nil {
		return err
	}

	if token == "" {
		fmt.Fprintf(c.out, "\n  %s No session token stored for %s.\n", cliui.DimStyle.Render("●"), c.gateway)
		fmt.Fprintf(c.out, "  Use 'careline auth' to store one.\n\n")
		return nil
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.HeaderStyle.Render("Session token"))
	fmt.Fprintln(c.out, cliui.KeyValue("gateway", c.gateway, 7))
	fmt.Fprintln(c.out, cliui.KeyValue("token", utils.Truncate(token, 12), 7))
	c.printExpiry(token)
	fmt.Fprintln(c.out)

	return nil
}

func (c *authCommander) runRemove(mgr *credentials.Manager) error {
	if err := mgr.RemoveToken(c.gateway); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s Removed session token for %s.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(c.gateway))

	return nil
}

func (c *authCommander) printExpiry(token string) {
	expiry, ok := credentials.TokenExpiry(token)
	switch {
	case !ok:
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("Token carries no expiry."))
	case credentials.TokenExpired(token, c.now()):
		fmt.Fprintf(c.out, "  %s Expired at %s\n", cliui.WarnStyle.Render("!"), expiry.Local().Format(time.RFC1123))
	default:
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("Expires at %s (in %s)",
			expiry.Local().Format(time.RFC1123), expiry.Sub(c.now()).Round(time.Minute))))
	}
}

// readToken reads the token from stdin. If stdin is a terminal it prompts
// with hidden input, otherwise it reads the first line.
func (c *authCommander) readToken() (string, error) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(c.out, "Enter session token for %s: ", c.gateway)

		tokenBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading session token: %w", err)
		}
		return string(tokenBytes), nil
	}

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
