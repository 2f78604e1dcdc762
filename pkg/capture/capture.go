// Package capture records the raw byte chunks of a chat stream and replays
// them, with their original boundaries, through a fresh reassembler.
//
// A capture file is JSON lines: a Header, then one Chunk per transport read.
//
//	{"version":0,"id":"...","created_at":"...","gateway":"..."}
//	{"seq":0,"at_ms":12,"data":"ZGF0YTogey..."}
package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/careline/pkg/sse"
)

// Version is the capture format version written by this package.
const Version = 0

// Header is the first line of a capture.
type Header struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Gateway   string    `json:"gateway,omitempty"`
}

// Chunk is one raw read from the stream body. Data is base64 in JSON.
type Chunk struct {
	Seq  int    `json:"seq"`
	AtMs int64  `json:"at_ms"`
	Data []byte `json:"data"`
}

// Recorder is an io.Writer that records each Write as one Chunk. Pass it to
// sse.WithTee to capture a stream as it is read.
type Recorder struct {
	enc   *json.Encoder
	start time.Time
	seq   int
	err   error

	now func() time.Time
}

// NewRecorder writes a header to w and returns a Recorder appending to it.
func NewRecorder(w io.Writer, gateway string) (*Recorder, error) {
	r := &Recorder{
		enc: json.NewEncoder(w),
		now: time.Now,
	}
	r.start = r.now()

	header := Header{
		Version:   Version,
		ID:        uuid.NewString(),
		CreatedAt: r.start.UTC(),
		Gateway:   gateway,
	}
	if err := r.enc.Encode(header); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}

	return r, nil
}

// Write records p as the next chunk. A write error is sticky.
func (r *Recorder) Write(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	chunk := Chunk{
		Seq:  r.seq,
		AtMs: r.now().Sub(r.start).Milliseconds(),
		Data: p,
	}
	if err := r.enc.Encode(chunk); err != nil {
		r.err = fmt.Errorf("writing capture chunk: %w", err)
		return 0, r.err
	}
	r.seq++

	return len(p), nil
}

// Chunks returns the number of chunks recorded.
func (r *Recorder) Chunks() int {
	return r.seq
}

// FileRecorder is a Recorder writing to a file it owns.
type FileRecorder struct {
	*Recorder

	f    *os.File
	path string
}

// CreateFile creates a new capture file in dir, named after the current time.
func CreateFile(dir, gateway string) (*FileRecorder, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating capture dir: %w", err)
	}

	name := fmt.Sprintf("capture-%s-%s.jsonl", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}

	rec, err := NewRecorder(f, gateway)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &FileRecorder{Recorder: rec, f: f, path: path}, nil
}

// Path returns the capture file path.
func (f *FileRecorder) Path() string {
	return f.path
}

// Close closes the capture file.
func (f *FileRecorder) Close() error {
	return f.f.Close()
}

// Capture is a decoded capture.
type Capture struct {
	Header Header
	Chunks []Chunk
}

// Read decodes a capture from r.
func Read(r io.Reader) (*Capture, error) {
	dec := json.NewDecoder(r)

	c := &Capture{}
	if err := dec.Decode(&c.Header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("capture is empty")
		}
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	if c.Header.Version != Version {
		return nil, fmt.Errorf("unsupported capture version %d", c.Header.Version)
	}

	for {
		var chunk Chunk
		err := dec.Decode(&chunk)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading capture chunk %d: %w", len(c.Chunks), err)
		}
		c.Chunks = append(c.Chunks, chunk)
	}

	return c, nil
}

// Open reads the capture file at path.
func Open(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Bytes returns the concatenated raw stream.
func (c *Capture) Bytes() []byte {
	var n int
	for _, chunk := range c.Chunks {
		n += len(chunk.Data)
	}

	out := make([]byte, 0, n)
	for _, chunk := range c.Chunks {
		out = append(out, chunk.Data...)
	}
	return out
}

// Reader returns a reader that yields the recorded chunks one per Read, so
// the original chunk boundaries are reproduced.
func (c *Capture) Reader() io.Reader {
	return &chunkReader{chunks: c.Chunks}
}

// Result is the outcome of a replay.
type Result struct {
	Content   string
	Fragments []string
	Stats     sse.Stats
}

// Replay feeds the capture through a fresh Reassembler.
func (c *Capture) Replay(opts ...sse.Option) (*Result, error) {
	r := sse.NewReassembler(c.Reader(), opts...)

	res := &Result{}
	for f, err := range r.Fragments() {
		if err != nil {
			return nil, fmt.Errorf("replaying capture: %w", err)
		}
		res.Fragments = append(res.Fragments, f.Content)
	}

	res.Content = r.Content()
	res.Stats = r.Stats()

	return res, nil
}

type chunkReader struct {
	chunks []Chunk
	off    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.chunks) > 0 && r.off >= len(r.chunks[0].Data) {
		r.chunks = r.chunks[1:]
		r.off = 0
	}
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}

	n := copy(p, r.chunks[0].Data[r.off:])
	r.off += n

	return n, nil
}
