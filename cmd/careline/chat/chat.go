// Package chatcmder provides the chat command for interactive chat with the
// care team assistant through the chat gateway.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/careline/pkg/capture"
	"github.com/papercomputeco/careline/pkg/chat"
	"github.com/papercomputeco/careline/pkg/cliui"
	"github.com/papercomputeco/careline/pkg/config"
	"github.com/papercomputeco/careline/pkg/credentials"
	"github.com/papercomputeco/careline/pkg/dotdir"
	"github.com/papercomputeco/careline/pkg/logger"
	"github.com/papercomputeco/careline/pkg/sse"
	"github.com/papercomputeco/careline/pkg/telemetry"
)

type chatCommander struct {
	configDir string

	gateway          string
	gatewayPath      string
	model            string
	timeout          string
	captureDir       string
	maxContinuations uint
	readSize         uint
	markdown         bool

	record bool
	resume bool
	debug  bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	endpoint  string
	turnLimit time.Duration
	logger    *slog.Logger
	ddm       *dotdir.Manager
	registry  *prometheus.Registry
}

const chatLongDesc string = `Start an interactive chat session with the care team assistant.

Each message is sent with the conversation so far to the chat gateway, and
the reply is printed as it streams in. Finished replies that contain
markdown are rendered again below the live text when --markdown is on.

The conversation is saved to conversation.json in the .careline/ directory
after every reply. Use --resume to pick it up again, or type /clear to start
over. With --record the raw bytes of every reply are written to a capture
file that "careline replay" can reassemble.

Commands inside the session:
  /exit     Quit (Ctrl+D works too)
  /clear    Forget the conversation
  /history  Show the number of stored messages
  /stats    Show stream counters for this session

Examples:
  careline chat
  careline chat --resume
  careline chat --gateway https://example.supabase.co --gateway-path /functions/v1/chat
  careline chat --record --timeout 2m`

const chatShortDesc string = "Interactive chat with the care team assistant"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{ddm: dotdir.NewManager()}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagGateway,
				config.FlagGatewayPath,
				config.FlagModel,
				config.FlagTimeout,
				config.FlagMaxContinuations,
				config.FlagCaptureDir,
				config.FlagMarkdown,
			})

			cmder.gateway = v.GetString("gateway.url")
			cmder.gatewayPath = v.GetString("gateway.path")
			cmder.model = v.GetString("gateway.model")
			cmder.timeout = v.GetString("gateway.timeout")
			cmder.maxContinuations = v.GetUint("stream.max_continuation_lines")
			cmder.readSize = v.GetUint("stream.read_size")
			cmder.captureDir = v.GetString("capture.dir")
			cmder.markdown = v.GetBool("chat.render_markdown")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			return cmder.run(cmd.Context())
		},
	}

	var gateway, gatewayPath, model, timeout, captureDir string
	var maxContinuations uint
	var markdown bool
	config.AddStringFlag(cmd, config.Flags, config.FlagGateway, &gateway)
	config.AddStringFlag(cmd, config.Flags, config.FlagGatewayPath, &gatewayPath)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &model)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &timeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagCaptureDir, &captureDir)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxContinuations, &maxContinuations)
	config.AddBoolFlag(cmd, config.Flags, config.FlagMarkdown, &markdown)
	cmd.Flags().BoolVar(&cmder.record, "record", false, "Record the raw bytes of every reply to a capture file")
	cmd.Flags().BoolVar(&cmder.resume, "resume", false, "Resume the saved conversation")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))

	var err error
	c.turnLimit, err = config.GatewayConfig{Timeout: c.timeout}.TimeoutDuration()
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	creds, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	c.endpoint = config.Endpoint(c.gateway, c.gatewayPath)
	c.registry = prometheus.NewRegistry()
	client, err := chat.NewClient(chat.Config{
		URL:           c.endpoint,
		Model:         c.model,
		Token:         credentials.NewTokenSource(creds, c.gateway),
		Logger:        c.logger,
		Metrics:       telemetry.NewMetrics(c.registry),
		StreamOptions: c.streamOptions(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out)
	conv, err := c.loadConversation()
	if err != nil {
		return err
	}

	printer := &replyPrinter{out: c.out}
	conv.SetObserver(printer)

	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Gateway:"), cliui.NameStyle.Render(c.endpoint))
	if c.model != "" {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(c.model))
	}
	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, cliui.UserPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, newConv := c.command(input, conv)
			if quit {
				break
			}
			if newConv != nil {
				conv = newConv
				conv.SetObserver(printer)
			}
			continue
		}

		c.turn(ctx, client, conv, printer, input)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// command handles a slash command. It reports whether to quit, and returns a
// replacement conversation when the current one was discarded.
func (c *chatCommander) command(input string, conv *chat.Conversation) (bool, *chat.Conversation) {
	switch input {
	case "/exit", "/quit":
		return true, nil

	case "/clear":
		if err := c.ddm.ClearConversation(c.configDir); err != nil {
			fmt.Fprintf(c.errOut, "  %s %v\n", cliui.FailMark, err)
			return false, nil
		}
		fresh, _ := chat.NewConversation()
		fmt.Fprintf(c.out, "  %s Conversation cleared\n\n", cliui.SuccessMark)
		return false, fresh

	case "/history":
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf("%d messages", conv.Len())))
		return false, nil

	case "/stats":
		c.printSessionStats()
		return false, nil

	default:
		fmt.Fprintf(c.errOut, "  %s unknown command %q\n\n", cliui.FailMark, input)
		return false, nil
	}
}

// turn sends one user message and streams the reply.
func (c *chatCommander) turn(ctx context.Context, client *chat.Client, conv *chat.Conversation, printer *replyPrinter, input string) {
	userMsg, err := conv.AppendUser(input)
	if err != nil {
		fmt.Fprintf(c.errOut, "  %s %v\n", cliui.FailMark, err)
		return
	}

	// Ctrl+C ends the current reply, not the session.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if c.turnLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.turnLimit)
		defer cancel()
	}

	var opts []sse.Option
	rec := c.startRecording()
	if rec != nil {
		defer rec.Close()
		opts = append(opts, sse.WithTee(rec))

		if diag, closeDiag := c.diagnosticsLogger(rec.Path()); diag != nil {
			defer closeDiag()
			opts = append(opts, sse.WithLogger(logger.Multi(c.logger, diag)))
		}
	}

	printer.reset()
	turn, err := client.Stream(ctx, conv, opts...)
	printer.end()

	if err != nil {
		var ce *chat.Error
		partial := errors.As(err, &ce) && ce.Kind == chat.KindStream && turn != nil && turn.Message != nil
		if !partial {
			// Take the message back so it can be retried.
			conv.Remove(userMsg.ID)
			fmt.Fprintf(c.errOut, "  %s %v\n\n", cliui.FailMark, err)
			return
		}
		fmt.Fprintf(c.errOut, "  %s %v %s\n", cliui.FailMark, err, cliui.DimStyle.Render("(partial reply kept)"))
	}

	switch {
	case turn.Message == nil:
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("(no reply)"))
	case c.markdown && looksLikeMarkdown(turn.Message.Content):
		rendered, err := cliui.RenderMarkdown(turn.Message.Content)
		if err != nil {
			c.logger.Debug("could not render markdown", "error", err)
		} else {
			fmt.Fprint(c.out, rendered)
		}
	}

	if turn.Message != nil {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("(%s, %d fragments)",
			cliui.FormatDuration(turn.Elapsed), turn.Stats.Fragments)))
	}
	if rec != nil {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf("recorded %d chunks to %s", rec.Chunks(), rec.Path())))
	}
	fmt.Fprintln(c.out)

	c.saveConversation(conv)
}

func (c *chatCommander) streamOptions() []sse.Option {
	var opts []sse.Option
	if c.readSize > 0 {
		opts = append(opts, sse.WithReadSize(int(c.readSize)))
	}
	// Zero in config means the library default.
	if c.maxContinuations > 0 {
		opts = append(opts, sse.WithMaxContinuationLines(int(c.maxContinuations)))
	}
	return opts
}

func (c *chatCommander) startRecording() *capture.FileRecorder {
	if !c.record {
		return nil
	}

	dir := c.captureDir
	if dir == "" {
		var err error
		dir, err = c.ddm.CapturesDir(c.configDir)
		if err != nil {
			fmt.Fprintf(c.errOut, "  %s not recording: %v\n", cliui.WarnStyle.Render("!"), err)
			return nil
		}
	}

	rec, err := capture.CreateFile(dir, c.endpoint)
	if err != nil {
		fmt.Fprintf(c.errOut, "  %s not recording: %v\n", cliui.WarnStyle.Render("!"), err)
		return nil
	}
	return rec
}

// sessionCounters maps display labels to the client collectors shown by /stats.
var sessionCounters = []struct {
	label string
	name  string
}{
	{"streams", "careline_streams_total"},
	{"fragments", "careline_stream_fragments_total"},
	{"bytes", "careline_stream_bytes_total"},
	{"skipped", "careline_stream_skipped_lines_total"},
	{"joined", "careline_stream_continuation_lines_total"},
	{"failures", "careline_request_failures_total"},
}

func (c *chatCommander) printSessionStats() {
	families, err := c.registry.Gather()
	if err != nil {
		fmt.Fprintf(c.errOut, "  %s %v\n\n", cliui.FailMark, err)
		return
	}

	// Label values are summed, so a vec shows its total.
	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			totals[mf.GetName()] += m.GetCounter().GetValue()
		}
	}

	fmt.Fprintf(c.out, "  %s\n", cliui.HeaderStyle.Render("Session stats"))
	for _, row := range sessionCounters {
		fmt.Fprintln(c.out, cliui.KeyValue(row.label, strconv.FormatFloat(totals[row.name], 'f', -1, 64), 9))
	}
	fmt.Fprintln(c.out)
}

// diagnosticsLogger opens a JSON debug log next to a capture file, so the
// reassembler's skipped-line diagnostics travel with the recorded bytes.
func (c *chatCommander) diagnosticsLogger(capturePath string) (*slog.Logger, func()) {
	path := strings.TrimSuffix(capturePath, ".jsonl") + ".log"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		c.logger.Debug("could not open capture diagnostics", "path", path, "error", err)
		return nil, nil
	}

	l := logger.New(logger.WithWriter(f), logger.WithJSON(true), logger.WithDebug(true))
	return l, func() { _ = f.Close() }
}

func (c *chatCommander) loadConversation() (*chat.Conversation, error) {
	if !c.resume {
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
		return chat.NewConversation()
	}

	state, err := c.ddm.LoadConversation(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if state == nil || len(state.Messages) == 0 {
		fmt.Fprintf(c.out, "  %s No saved conversation, starting a new one\n", cliui.DimStyle.Render("●"))
		return chat.NewConversation()
	}

	history := make([]chat.Message, 0, len(state.Messages))
	for _, m := range state.Messages {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			id = uuid.New()
		}
		history = append(history, chat.Message{
			ID:        id,
			Role:      chat.Role(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	conv, err := chat.NewConversation(history...)
	if err != nil {
		return nil, fmt.Errorf("restoring conversation: %w", err)
	}

	fmt.Fprintf(c.out, "  %s Resuming conversation %s\n",
		cliui.SuccessMark,
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", conv.Len())),
	)
	return conv, nil
}

func (c *chatCommander) saveConversation(conv *chat.Conversation) {
	msgs := conv.Messages()
	state := &dotdir.ConversationState{
		Gateway:  c.endpoint,
		Model:    c.model,
		Messages: make([]dotdir.ConversationMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		state.Messages = append(state.Messages, dotdir.ConversationMessage{
			ID:        m.ID.String(),
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}

	if err := c.ddm.SaveConversation(state, c.configDir); err != nil {
		c.logger.Warn("could not save conversation", "error", err)
	}
}

// looksLikeMarkdown reports whether content uses formatting worth rendering.
func looksLikeMarkdown(content string) bool {
	if strings.Contains(content, "**") || strings.Contains(content, "`") {
		return true
	}
	for line := range strings.SplitSeq(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			return true
		}
	}
	return false
}
