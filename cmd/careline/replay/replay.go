// Package replaycmder provides the replay command, which feeds a recorded
// stream capture through a fresh reassembler.
package replaycmder

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/careline/pkg/capture"
	"github.com/papercomputeco/careline/pkg/cliui"
	"github.com/papercomputeco/careline/pkg/logger"
	"github.com/papercomputeco/careline/pkg/sse"
)

const replayLongDesc string = `Replay a recorded chat stream.

Reads a capture written by "careline chat --record", feeds its raw chunks
through a fresh stream reassembler with the original chunk boundaries, and
prints the reconstructed assistant content. Replaying the same capture always
yields the same content.

Examples:
  careline replay ~/.careline/captures/capture-20260101T120000Z-1a2b3c4d.jsonl
  careline replay capture.jsonl --stats
  careline replay capture.jsonl --fragments`

const replayShortDesc string = "Reassemble a recorded chat stream"

type replayCommander struct {
	path             string
	stats            bool
	fragments        bool
	maxContinuations int
	debug            bool

	out    io.Writer
	errOut io.Writer
}

func NewReplayCmd() *cobra.Command {
	cmder := &replayCommander{}

	cmd := &cobra.Command{
		Use:   "replay <capture-file>",
		Short: replayShortDesc,
		Long:  replayLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.path = args[0]
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			return cmder.run()
		},
	}

	cmd.Flags().BoolVar(&cmder.stats, "stats", false, "Print stream counters after the content")
	cmd.Flags().BoolVar(&cmder.fragments, "fragments", false, "Print each fragment on its own line")
	cmd.Flags().IntVar(&cmder.maxContinuations, "max-continuation-lines", -1, "Override the continuation line limit (-1 keeps the default)")

	return cmd
}

func (c *replayCommander) run() error {
	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))

	capt, err := capture.Open(c.path)
	if err != nil {
		return err
	}

	opts := []sse.Option{sse.WithLogger(log)}
	if c.maxContinuations >= 0 {
		opts = append(opts, sse.WithMaxContinuationLines(c.maxContinuations))
	}

	// Progress goes to stderr so stdout carries only the content.
	var res *capture.Result
	msg := fmt.Sprintf("Reassembling %d chunks", len(capt.Chunks))
	err = cliui.Step(c.errOut, msg, func() error {
		var replayErr error
		res, replayErr = capt.Replay(opts...)
		return replayErr
	})
	if err != nil {
		return err
	}

	if c.fragments {
		for i, f := range res.Fragments {
			fmt.Fprintf(c.out, "%s %s\n", cliui.DimStyle.Render(fmt.Sprintf("%4d", i)), strconv.Quote(f))
		}
	} else {
		fmt.Fprintln(c.out, res.Content)
	}

	if c.stats {
		c.printStats(capt, res.Stats)
	}

	return nil
}

func (c *replayCommander) printStats(capt *capture.Capture, s sse.Stats) {
	rows := []struct {
		key   string
		value string
	}{
		{"gateway", capt.Header.Gateway},
		{"recorded", capt.Header.CreatedAt.Format("2006-01-02 15:04:05 MST")},
		{"chunks", strconv.Itoa(s.Chunks)},
		{"bytes", strconv.Itoa(s.Bytes)},
		{"lines", strconv.Itoa(s.Lines)},
		{"fragments", strconv.Itoa(s.Fragments)},
		{"blank", strconv.Itoa(s.Blank)},
		{"comments", strconv.Itoa(s.Comments)},
		{"foreign", strconv.Itoa(s.Foreign)},
		{"malformed", strconv.Itoa(s.Malformed)},
		{"joined", strconv.Itoa(s.Continuations)},
		{"done", strconv.FormatBool(s.SawDone)},
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stream stats"))
	for _, r := range rows {
		fmt.Fprintln(c.out, cliui.KeyValue(r.key, r.value, 9))
	}
	fmt.Fprintln(c.out)
}
