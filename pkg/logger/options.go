package logger

import (
	"io"
	"log/slog"
)

// Option adjusts how New builds a logger.
type Option func(*config)

// WithDebug turns on debug records, such as the reassembler's skipped-line
// diagnostics. It follows the global --debug flag.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		} else {
			c.level = slog.LevelInfo
		}
	}
}

// WithPretty selects the coloured charm handler used by interactive commands
// like chat and replay.
func WithPretty(pretty bool) Option {
	return func(c *config) {
		c.pretty = pretty
	}
}

// WithJSON selects one JSON object per record, for the dev gateway's
// --json-logs and for capture diagnostics. It takes precedence over
// WithPretty.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithPrefix labels every pretty record, e.g. "gateway" for serve gateway.
func WithPrefix(prefix string) Option {
	return func(c *config) {
		c.prefix = prefix
	}
}

// WithWriter sends records to w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writers = []io.Writer{w}
	}
}

// WithWriters copies every record to each of w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = w
	}
}

// WithSource adds the calling file and line to each record.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
