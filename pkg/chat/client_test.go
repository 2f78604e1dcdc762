package chat_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/careline/pkg/chat"
	"github.com/papercomputeco/careline/pkg/sse"
	"github.com/papercomputeco/careline/pkg/telemetry"
)

type capturedRequest struct {
	header http.Header
	body   map[string]any
}

func dataLine(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": content}}},
	})
	return "data: " + string(b) + "\n\n"
}

// streamHandler writes each piece of the stream as its own flushed chunk.
func streamHandler(captured chan<- capturedRequest, pieces ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if captured != nil {
			captured <- capturedRequest{header: r.Header.Clone(), body: body}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, p := range pieces {
			_, _ = io.WriteString(w, p)
			w.(http.Flusher).Flush()
		}
	}
}

func newClient(url string, token chat.TokenSource) *chat.Client {
	client, err := chat.NewClient(chat.Config{URL: url, Model: "careline-test", Token: token})
	Expect(err).NotTo(HaveOccurred())
	return client
}

func newConversation(userText string) *chat.Conversation {
	conv, err := chat.NewConversation()
	Expect(err).NotTo(HaveOccurred())
	_, err = conv.AppendUser(userText)
	Expect(err).NotTo(HaveOccurred())
	return conv
}

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		captured chan capturedRequest
	)

	BeforeEach(func() {
		captured = make(chan capturedRequest, 1)
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Describe("NewClient", func() {
		It("requires an http URL", func() {
			_, err := chat.NewClient(chat.Config{})
			Expect(err).To(HaveOccurred())

			_, err = chat.NewClient(chat.Config{URL: "ftp://example.com"})
			Expect(err).To(MatchError(ContainSubstring("http or https")))
		})
	})

	Describe("Stream", func() {
		It("streams a reply into the conversation", func() {
			server = httptest.NewServer(streamHandler(captured,
				dataLine("Take ")+dataLine("it with "),
				`data: {"choices":[{"delta":{"content":"fo`,
				`od."}}]}`+"\n\n",
				"data: [DONE]\n\n",
			))

			conv := newConversation("How should I take ibuprofen?")
			obs := &recordingObserver{}
			conv.SetObserver(obs)

			turn, err := newClient(server.URL, chat.StaticToken("tok")).Stream(context.Background(), conv)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Message).NotTo(BeNil())
			Expect(turn.Message.Content).To(Equal("Take it with food."))
			Expect(turn.Stats.Fragments).To(Equal(3))
			Expect(turn.Stats.SawDone).To(BeTrue())

			msgs := conv.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Role).To(Equal(chat.RoleAssistant))
			Expect(msgs[1].Content).To(Equal("Take it with food."))

			Expect(obs.appends).To(HaveLen(1))
			Expect(obs.updates).To(HaveLen(2))
			Expect(obs.finishes).To(HaveLen(1))

			_, inProgress := conv.InProgress()
			Expect(inProgress).To(BeFalse())
		})

		It("sends the history with bearer auth", func() {
			server = httptest.NewServer(streamHandler(captured, "data: [DONE]\n\n"))

			conv := newConversation("hello")
			_, err := newClient(server.URL, chat.StaticToken("session-123")).Stream(context.Background(), conv)
			Expect(err).NotTo(HaveOccurred())

			var req capturedRequest
			Eventually(captured).Should(Receive(&req))
			Expect(req.header.Get("Authorization")).To(Equal("Bearer session-123"))
			Expect(req.header.Get("Accept")).To(Equal("text/event-stream"))
			Expect(req.header.Get("Content-Type")).To(Equal("application/json"))
			Expect(req.header.Get("User-Agent")).To(HavePrefix("careline/"))

			Expect(req.body["stream"]).To(BeTrue())
			Expect(req.body["model"]).To(Equal("careline-test"))
			Expect(req.body["messages"]).To(Equal([]any{
				map[string]any{"role": "user", "content": "hello"},
			}))
		})

		It("returns a turn without a message when no content arrives", func() {
			server = httptest.NewServer(streamHandler(nil, ": keep-alive\n\n", "data: [DONE]\n\n"))

			conv := newConversation("anyone there?")
			turn, err := newClient(server.URL, nil).Stream(context.Background(), conv)
			Expect(err).NotTo(HaveOccurred())
			Expect(turn.Message).To(BeNil())
			Expect(conv.Len()).To(Equal(1))
		})

		It("forwards the raw stream to a tee", func() {
			pieces := []string{dataLine("a"), ": ping\n", dataLine("b")}
			server = httptest.NewServer(streamHandler(nil, pieces...))

			var raw bytes.Buffer
			conv := newConversation("x")
			_, err := newClient(server.URL, nil).Stream(context.Background(), conv, sse.WithTee(&raw))
			Expect(err).NotTo(HaveOccurred())
			Expect(raw.String()).To(Equal(strings.Join(pieces, "")))
		})

		It("surfaces a rate limit before streaming", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, `{"error":"Rate limits exceeded"}`)
			}))

			conv := newConversation("again")
			obs := &recordingObserver{}
			conv.SetObserver(obs)

			turn, err := newClient(server.URL, nil).Stream(context.Background(), conv)
			Expect(turn).To(BeNil())
			Expect(errors.Is(err, chat.ErrRateLimited)).To(BeTrue())
			Expect(err.Error()).To(Equal("rate limit exceeded, please try again later"))

			var chatErr *chat.Error
			Expect(errors.As(err, &chatErr)).To(BeTrue())
			Expect(chatErr.Status).To(Equal(http.StatusTooManyRequests))

			Expect(conv.Len()).To(Equal(1))
			Expect(obs.appends).To(BeEmpty())
		})

		It("reads the message of an upstream error", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, `{"error":{"message":"AI gateway error"}}`)
			}))

			_, err := newClient(server.URL, nil).Stream(context.Background(), newConversation("x"))
			Expect(errors.Is(err, chat.ErrUpstream)).To(BeTrue())
			Expect(err.Error()).To(Equal("AI gateway error"))
		})

		It("reports a response without a body", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			turn, err := newClient(server.URL, nil).Stream(context.Background(), newConversation("x"))
			Expect(turn).To(BeNil())
			Expect(errors.Is(err, chat.ErrNoBody)).To(BeTrue())

			var ce *chat.Error
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Status).To(Equal(http.StatusOK))
		})

		It("reports transport failures", func() {
			dead := httptest.NewServer(http.NotFoundHandler())
			url := dead.URL
			dead.Close()

			_, err := newClient(url, nil).Stream(context.Background(), newConversation("x"))
			var chatErr *chat.Error
			Expect(errors.As(err, &chatErr)).To(BeTrue())
			Expect(chatErr.Kind).To(Equal(chat.KindTransport))
		})

		It("keeps partial content when the stream breaks", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, dataLine("Your appoint"))
				w.(http.Flusher).Flush()
				panic(http.ErrAbortHandler)
			}))

			conv := newConversation("when is my appointment?")
			turn, err := newClient(server.URL, nil).Stream(context.Background(), conv)
			Expect(errors.Is(err, chat.ErrStream)).To(BeTrue())
			Expect(turn).NotTo(BeNil())
			Expect(turn.Message.Content).To(Equal("Your appoint"))

			_, inProgress := conv.InProgress()
			Expect(inProgress).To(BeFalse())
			Expect(conv.Messages()[1].Content).To(Equal("Your appoint"))
		})

		It("refuses an expired session without calling the gateway", func() {
			var hits atomic.Int32
			server = httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				hits.Add(1)
			}))

			expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"exp": time.Now().Add(-time.Hour).Unix(),
			}).SignedString([]byte("secret"))
			Expect(err).NotTo(HaveOccurred())

			_, err = newClient(server.URL, chat.StaticToken(expired)).Stream(context.Background(), newConversation("x"))
			Expect(errors.Is(err, chat.ErrUnauthorized)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("session expired"))
			Expect(hits.Load()).To(BeZero())
		})

		It("refuses to start while a turn is in progress", func() {
			conv := newConversation("x")
			conv.AppendAssistantFragment("streaming")

			_, err := newClient("http://localhost:1", nil).Stream(context.Background(), conv)
			Expect(err).To(MatchError(chat.ErrTurnInProgress))
		})

		It("records stream metrics", func() {
			server = httptest.NewServer(streamHandler(nil, dataLine("ok"), ": c\n", "data: [DONE]\n\n"))

			reg := prometheus.NewRegistry()
			client, err := chat.NewClient(chat.Config{URL: server.URL, Metrics: telemetry.NewMetrics(reg)})
			Expect(err).NotTo(HaveOccurred())

			_, err = client.Stream(context.Background(), newConversation("x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(testutil.GatherAndCount(reg, "careline_streams_total")).To(Equal(1))
			Expect(testutil.GatherAndCount(reg, "careline_request_failures_total")).To(Equal(0))
		})
	})
})
