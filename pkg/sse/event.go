// Package sse provides a purpose-built reassembler for chat-completion
// Server-Sent-Events streams. It turns the raw bytes of an HTTP response body
// into an ordered sequence of content fragments, tolerating chunk boundaries
// that split lines, multi-byte characters, or JSON payloads anywhere.
//
// Only the `data: ` field is interpreted. Comments, blank lines and any other
// field are skipped. The payload `[DONE]` ends the stream.
//
// Event stream format:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "fmt"

const (
	// DataPrefix is the literal line prefix carrying an event payload.
	DataPrefix = "data: "

	// DoneSentinel is the payload signaling the logical end of generation.
	DoneSentinel = "[DONE]"
)

// Fragment is a single non-empty piece of assistant content extracted from
// one `data:` payload.
type Fragment struct {
	// Index is the zero-based position of this fragment in the stream.
	Index int

	// Content is the incremental text carried by the delta.
	Content string
}

// State is the lifecycle position of a Reassembler.
type State int

const (
	// StateAwaitingFirstByte is the initial state before any chunk is read.
	StateAwaitingFirstByte State = iota

	// StateStreaming means at least one chunk was read and the source is open.
	StateStreaming

	// StateFlushing means the source ended and the residual buffer is being
	// processed.
	StateFlushing

	// StateDone is terminal. It is reached by end of stream, by the sentinel,
	// or by a read error.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateAwaitingFirstByte:
		return "awaiting_first_byte"
	case StateStreaming:
		return "streaming"
	case StateFlushing:
		return "flushing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats counts what a Reassembler saw over the lifetime of one stream.
type Stats struct {
	Chunks    int `json:"chunks"`
	Bytes     int `json:"bytes"`
	Lines     int `json:"lines"`
	Fragments int `json:"fragments"`

	// Skipped line counters, by reason.
	Blank     int `json:"blank"`
	Comments  int `json:"comments"`
	Foreign   int `json:"foreign"`
	Malformed int `json:"malformed"`

	// Continuations counts lines that were joined onto an incomplete payload.
	Continuations int `json:"continuations"`

	// SawDone is true when the stream ended on the sentinel.
	SawDone bool `json:"saw_done"`
}

// Skipped returns the total number of lines that produced no fragment for
// any reason other than carrying an empty delta.
func (s Stats) Skipped() int {
	return s.Blank + s.Comments + s.Foreign + s.Malformed
}

// completionChunk is the subset of a streamed chat-completion chunk that the
// reassembler reads: choices[0].delta.content.
type completionChunk struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// content returns the first choice's delta content, or "" when absent.
func (c *completionChunk) content() string {
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil {
		return ""
	}
	return *c.Choices[0].Delta.Content
}
