package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/papercomputeco/careline/pkg/logger"
	"github.com/papercomputeco/careline/pkg/utils"
)

const (
	defaultReadSize             = 4 * 1024
	defaultMaxContinuationLines = 8
	defaultMaxPendingBytes      = 1024 * 1024

	// logPayloadLen caps how much of a skipped payload is written to debug logs.
	logPayloadLen = 200
)

var (
	errIncomplete   = errors.New("incomplete JSON payload")
	errTrailingData = errors.New("trailing data after JSON payload")
)

// Option configures a Reassembler created with NewReassembler.
type Option func(*Reassembler)

// WithTee writes every raw byte read from the source to w, verbatim and
// before decoding. Each source read becomes exactly one Write call, so a
// recorder on the other end observes the transport's chunk boundaries.
func WithTee(w io.Writer) Option {
	return func(r *Reassembler) {
		r.tee = w
	}
}

// WithLogger sets the logger used for skipped-line diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reassembler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReadSize sets the size of the read buffer handed to the source.
func WithReadSize(n int) Option {
	return func(r *Reassembler) {
		if n > 0 {
			r.readSize = n
		}
	}
}

// WithMaxContinuationLines bounds how many following lines may be joined onto
// an incomplete JSON payload before it is discarded. Zero disables joining,
// so an incomplete payload is treated as malformed right away.
func WithMaxContinuationLines(n int) Option {
	return func(r *Reassembler) {
		if n >= 0 {
			r.maxContinuations = n
		}
	}
}

// WithMaxPendingBytes bounds the size of an incomplete payload held while
// waiting for continuation lines.
func WithMaxPendingBytes(n int) Option {
	return func(r *Reassembler) {
		if n > 0 {
			r.maxPendingBytes = n
		}
	}
}

// Reassembler consumes an SSE chat-completion stream and yields the content
// fragments it carries, in arrival order.
//
// ┌──────────────────┐   ┌───────────────┐   ┌──────────────┐
// │ source io.Reader │──▶│ UTF-8 decoder │──▶│ line buffer  │
// └──────────────────┘   └───────────────┘   └──────────────┘
// │ (tee: raw bytes)                                 │
// ▼                                                  ▼
// ┌──────────────────┐                        ┌──────────────┐
// │   io.Writer      │                        │ Next()       │──▶ Fragment
// └──────────────────┘                        └──────────────┘
//
// A Reassembler is single-pass and not safe for concurrent use. Abandoning it
// early is fine; the owner of the source is responsible for closing it.
type Reassembler struct {
	src    io.Reader
	tee    io.Writer
	logger *slog.Logger

	readSize         int
	maxContinuations int
	maxPendingBytes  int

	state State
	err   error

	readBuf []byte

	// buf holds decoded text that is not yet resolved into a complete line.
	buf []byte

	// ready holds fragments extracted from the last chunk, not yet returned.
	ready   []*Fragment
	content strings.Builder

	// pending is an incomplete JSON payload waiting for continuation lines.
	pending       string
	hasPending    bool
	continuations int

	stats Stats
}

// NewReassembler returns a Reassembler reading from src.
func NewReassembler(src io.Reader, opts ...Option) *Reassembler {
	r := &Reassembler{
		logger:           logger.Nop(),
		readSize:         defaultReadSize,
		maxContinuations: defaultMaxContinuationLines,
		maxPendingBytes:  defaultMaxPendingBytes,
		state:            StateAwaitingFirstByte,
	}

	for _, opt := range opts {
		opt(r)
	}

	raw := src
	if r.tee != nil {
		raw = io.TeeReader(src, r.tee)
	}

	// The decoder keeps partial multi-byte sequences across reads, replaces
	// invalid bytes with U+FFFD and strips a leading BOM.
	r.src = transform.NewReader(&countingReader{src: raw, stats: &r.stats}, unicode.UTF8BOM.NewDecoder())
	r.readBuf = make([]byte, r.readSize)

	return r
}

// Next returns the next content fragment. It blocks until a fragment is
// available or the stream ends. Next returns nil, nil once the stream is
// exhausted or the sentinel was seen. A source read error other than io.EOF
// is returned after any fragments decoded before it, and on every call after.
func (r *Reassembler) Next() (*Fragment, error) {
	for len(r.ready) == 0 {
		if r.state == StateDone {
			return nil, r.err
		}
		r.step()
	}

	f := r.ready[0]
	r.ready[0] = nil
	r.ready = r.ready[1:]

	return f, nil
}

// Fragments returns an iterator over the remaining fragments. Iteration stops
// at the end of the stream or after yielding a read error.
func (r *Reassembler) Fragments() iter.Seq2[*Fragment, error] {
	return func(yield func(*Fragment, error) bool) {
		for {
			f, err := r.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			if f == nil {
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Content returns the concatenation of every fragment extracted so far,
// including fragments not yet returned by Next.
func (r *Reassembler) Content() string {
	return r.content.String()
}

// State returns the current lifecycle state.
func (r *Reassembler) State() State {
	return r.state
}

// Stats returns a snapshot of the stream counters.
func (r *Reassembler) Stats() Stats {
	return r.stats
}

// step performs a single source read and processes whatever it produced.
func (r *Reassembler) step() {
	n, err := r.src.Read(r.readBuf)
	if n > 0 {
		if r.state == StateAwaitingFirstByte {
			r.state = StateStreaming
		}
		r.buf = append(r.buf, r.readBuf[:n]...)
		r.scan()
	}

	if r.state == StateDone {
		return
	}

	switch {
	case err == nil:
		return
	case errors.Is(err, io.EOF):
		r.flush()
	default:
		r.logger.Debug("stream read failed",
			"error", err,
			"state", r.state.String(),
		)
		r.err = err
		r.state = StateDone
		r.buf = nil
	}
}

// scan extracts every complete line from the buffer. The unterminated
// remainder is kept for the next chunk.
func (r *Reassembler) scan() {
	off := 0
	for r.state != StateDone {
		i := bytes.IndexByte(r.buf[off:], '\n')
		if i < 0 {
			break
		}

		line := string(r.buf[off : off+i])
		off += i + 1
		r.handleLine(line)
	}

	if r.state == StateDone {
		r.buf = nil
		return
	}

	n := copy(r.buf, r.buf[off:])
	r.buf = r.buf[:n]
}

// flush processes the text left over after the source ended. The same line
// rules apply; a payload that is still incomplete is discarded, since no more
// bytes can complete it.
func (r *Reassembler) flush() {
	r.state = StateFlushing

	residual := string(r.buf)
	r.buf = nil

	if residual != "" {
		for _, line := range strings.Split(residual, "\n") {
			if r.state == StateDone {
				break
			}
			r.handleLine(line)
		}
	}

	if r.hasPending {
		r.dropPending("stream ended before payload completed")
	}

	r.state = StateDone
}

func (r *Reassembler) handleLine(line string) {
	r.stats.Lines++
	line = strings.TrimSuffix(line, "\r")

	// A blank line closes an SSE event, so a pending payload can no longer
	// be completed.
	if strings.TrimSpace(line) == "" {
		r.stats.Blank++
		if r.hasPending {
			r.dropPending("event ended before payload completed")
		}
		return
	}

	if strings.HasPrefix(line, ":") {
		r.stats.Comments++
		return
	}

	isData := strings.HasPrefix(line, DataPrefix)
	payload := ""
	if isData {
		payload = strings.TrimSpace(line[len(DataPrefix):])
	}

	if r.hasPending {
		if isData && payload == DoneSentinel {
			r.dropPending("sentinel before payload completed")
			r.finish()
			return
		}

		// A data line that decodes on its own starts a new payload. Joining
		// it would let a cut-off payload swallow complete lines after it.
		if isData {
			if content, err := decodeContent(payload); err == nil {
				r.dropPending("new payload before pending payload completed")
				r.emit(content)
				return
			}
		}

		part := payload
		if !isData {
			part = line
		}
		if r.continuePending(part) {
			return
		}
	}

	if !isData {
		r.stats.Foreign++
		return
	}

	r.decode(payload)
}

// decode handles the trimmed payload of a standalone `data: ` line.
func (r *Reassembler) decode(payload string) {
	if payload == "" {
		r.stats.Blank++
		return
	}

	if payload == DoneSentinel {
		r.finish()
		return
	}

	content, err := decodeContent(payload)
	switch {
	case err == nil:
		r.emit(content)
	case errors.Is(err, errIncomplete) && r.maxContinuations > 0 && len(payload) <= r.maxPendingBytes:
		r.pending = payload
		r.hasPending = true
		r.continuations = 0
	default:
		r.stats.Malformed++
		r.logger.Debug("skipping malformed stream payload",
			"error", err,
			"data", utils.Truncate(payload, logPayloadLen),
		)
	}
}

// continuePending joins part onto the pending payload. It returns false when
// the joined payload is malformed; the pending payload is then dropped and the
// caller handles the line on its own.
func (r *Reassembler) continuePending(part string) bool {
	candidate := r.pending + "\n" + part

	content, err := decodeContent(candidate)
	switch {
	case err == nil:
		r.stats.Continuations++
		r.clearPending()
		r.emit(content)
		return true

	case errors.Is(err, errIncomplete):
		r.stats.Continuations++
		r.continuations++
		if r.continuations >= r.maxContinuations || len(candidate) > r.maxPendingBytes {
			r.pending = candidate
			r.dropPending("payload exceeded continuation limit")
			return true
		}
		r.pending = candidate
		return true

	default:
		r.dropPending("joined payload is malformed")
		return false
	}
}

func (r *Reassembler) emit(content string) {
	if content == "" {
		return
	}

	f := &Fragment{Index: r.stats.Fragments, Content: content}
	r.stats.Fragments++
	r.content.WriteString(content)
	r.ready = append(r.ready, f)
}

// finish ends the stream on the sentinel. Nothing after it is read.
func (r *Reassembler) finish() {
	r.stats.SawDone = true
	r.state = StateDone
	r.buf = nil
}

func (r *Reassembler) dropPending(reason string) {
	r.stats.Malformed++
	r.logger.Debug("discarding incomplete stream payload",
		"reason", reason,
		"data", utils.Truncate(r.pending, logPayloadLen),
	)
	r.clearPending()
}

func (r *Reassembler) clearPending() {
	r.pending = ""
	r.hasPending = false
	r.continuations = 0
}

// decodeContent parses a payload as a completion chunk and returns its delta
// content. A payload cut short returns errIncomplete.
func decodeContent(payload string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(payload))

	var chunk completionChunk
	if err := dec.Decode(&chunk); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", errIncomplete
		}
		return "", err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", errTrailingData
	}

	return chunk.content(), nil
}

// countingReader records raw chunk and byte counts before decoding.
type countingReader struct {
	src   io.Reader
	stats *Stats
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.src.Read(p)
	if n > 0 {
		c.stats.Chunks++
		c.stats.Bytes += n
	}
	return n, err
}
