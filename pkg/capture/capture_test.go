package capture_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/careline/pkg/capture"
	"github.com/papercomputeco/careline/pkg/sse"
)

// piecewiseReader returns one piece per Read.
type piecewiseReader struct {
	pieces []string
}

func (p *piecewiseReader) Read(b []byte) (int, error) {
	if len(p.pieces) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pieces[0])
	p.pieces[0] = p.pieces[0][n:]
	if p.pieces[0] == "" {
		p.pieces = p.pieces[1:]
	}
	return n, nil
}

type failingWriter struct {
	calls int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	f.calls++
	if f.calls > 1 {
		return 0, errors.New("disk full")
	}
	return len(p), nil
}

var pieces = []string{
	`data: {"choices":[{"delta":{"content":"Dr. Ada is "}}]}` + "\n\n",
	`data: {"choices":[{"delta":{"content":"avail`,
	`able on Tuesday ✓"}}]}` + "\n\n" + ": keep-alive\n",
	"data: [DONE]\n\n",
}

func record(buf *bytes.Buffer) (*sse.Reassembler, *capture.Recorder) {
	rec, err := capture.NewRecorder(buf, "http://localhost:8090/v1/chat/completions")
	Expect(err).NotTo(HaveOccurred())

	src := &piecewiseReader{pieces: append([]string(nil), pieces...)}
	r := sse.NewReassembler(src, sse.WithTee(rec))
	for _, err := range r.Fragments() {
		Expect(err).NotTo(HaveOccurred())
	}
	return r, rec
}

var _ = Describe("Recorder", func() {
	It("records one chunk per read", func() {
		var buf bytes.Buffer
		_, rec := record(&buf)
		Expect(rec.Chunks()).To(Equal(len(pieces)))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(len(pieces) + 1))
		Expect(lines[0]).To(ContainSubstring(`"version":0`))
		Expect(lines[1]).To(HavePrefix(`{"seq":0,`))
	})

	It("makes write errors sticky", func() {
		w := &failingWriter{}
		rec, err := capture.NewRecorder(w, "")
		Expect(err).NotTo(HaveOccurred())

		_, err = rec.Write([]byte("a"))
		Expect(err).To(MatchError(ContainSubstring("disk full")))

		_, err = rec.Write([]byte("b"))
		Expect(err).To(HaveOccurred())
		Expect(w.calls).To(Equal(2))
	})
})

var _ = Describe("Capture", func() {
	It("replays to the same content and counters", func() {
		var buf bytes.Buffer
		original, _ := record(&buf)

		c, err := capture.Read(&buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Header.Gateway).To(Equal("http://localhost:8090/v1/chat/completions"))
		Expect(c.Header.ID).NotTo(BeEmpty())
		Expect(c.Chunks).To(HaveLen(len(pieces)))
		Expect(string(c.Bytes())).To(Equal(strings.Join(pieces, "")))

		res, err := c.Replay()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Content).To(Equal("Dr. Ada is available on Tuesday ✓"))
		Expect(res.Content).To(Equal(original.Content()))
		Expect(res.Fragments).To(Equal([]string{"Dr. Ada is ", "available on Tuesday ✓"}))
		Expect(res.Stats).To(Equal(original.Stats()))
	})

	It("reproduces the recorded chunk boundaries", func() {
		c := &capture.Capture{Chunks: []capture.Chunk{
			{Seq: 0, Data: []byte("abc")},
			{Seq: 1, Data: []byte{}},
			{Seq: 2, Data: []byte("de")},
		}}

		r := c.Reader()
		p := make([]byte, 16)

		n, err := r.Read(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(p[:n])).To(Equal("abc"))

		n, err = r.Read(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(p[:n])).To(Equal("de"))

		_, err = r.Read(p)
		Expect(err).To(Equal(io.EOF))
	})

	It("rejects an empty capture", func() {
		_, err := capture.Read(strings.NewReader(""))
		Expect(err).To(MatchError("capture is empty"))
	})

	It("rejects an unknown version", func() {
		_, err := capture.Read(strings.NewReader(`{"version":9}` + "\n"))
		Expect(err).To(MatchError(ContainSubstring("unsupported capture version")))
	})

	It("reports a corrupt chunk", func() {
		_, err := capture.Read(strings.NewReader(`{"version":0}` + "\n" + `{"seq":0,"data":"!!"}` + "\n"))
		Expect(err).To(MatchError(ContainSubstring("chunk 0")))
	})
})

var _ = Describe("FileRecorder", func() {
	It("writes a capture file that can be opened again", func() {
		dir := GinkgoT().TempDir()

		rec, err := capture.CreateFile(filepath.Join(dir, "captures"), "gw")
		Expect(err).NotTo(HaveOccurred())
		_, err = rec.Write([]byte(pieces[0]))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Close()).To(Succeed())

		info, err := os.Stat(rec.Path())
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		Expect(filepath.Base(rec.Path())).To(HavePrefix("capture-"))

		c, err := capture.Open(rec.Path())
		Expect(err).NotTo(HaveOccurred())

		res, err := c.Replay()
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Content).To(Equal("Dr. Ada is "))
	})
})
