package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/papercomputeco/careline/pkg/credentials"
	"github.com/papercomputeco/careline/pkg/logger"
	"github.com/papercomputeco/careline/pkg/sse"
	"github.com/papercomputeco/careline/pkg/telemetry"
	"github.com/papercomputeco/careline/pkg/utils"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// TokenSource supplies the bearer token sent with each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config configures a Client.
type Config struct {
	// URL is the full chat-completion endpoint.
	URL string

	// Model is sent with each request when set.
	Model string

	// Token supplies the bearer token. Nil sends no Authorization header.
	Token TokenSource

	// HTTPClient sends requests. It should not set a Timeout, since that
	// would cut long streams short; use the request context instead.
	HTTPClient *http.Client

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// StreamOptions are applied to the Reassembler of every stream.
	StreamOptions []sse.Option
}

// Client streams assistant replies from a chat-completion gateway.
type Client struct {
	url        string
	model      string
	token      TokenSource
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	streamOpts []sse.Option

	now func() time.Time
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("gateway URL is required")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing gateway URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway URL must be http or https, got %q", cfg.URL)
	}

	c := &Client{
		url:        u.String(),
		model:      cfg.Model,
		token:      cfg.Token,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		streamOpts: cfg.StreamOptions,
		now:        time.Now,
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}

	return c, nil
}

// Turn is the outcome of one streamed assistant reply.
type Turn struct {
	// Message is the assistant message built from the stream, or nil when the
	// stream carried no content.
	Message *Message

	// Stats are the reassembler counters of the stream.
	Stats sse.Stats

	// Elapsed is the time from sending the request to the end of the stream.
	Elapsed time.Duration
}

type completionRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type wireMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Stream sends the messages of conv and streams the reply into it. The first
// fragment appends an assistant message; later fragments grow it in place.
//
// Failures before streaming return an *Error and leave conv unchanged. A read
// failure during streaming keeps the partial message, finishes the turn and
// returns it along with an *Error of KindStream. A stream without content
// returns a Turn with a nil Message.
func (c *Client) Stream(ctx context.Context, conv *Conversation, opts ...sse.Option) (*Turn, error) {
	if _, ok := conv.InProgress(); ok {
		return nil, ErrTurnInProgress
	}

	start := c.now()

	req, err := c.newRequest(ctx, conv)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending chat request",
		"url", c.url,
		"model", c.model,
		"message_count", conv.Len(),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(&Error{Kind: KindTransport, Message: "could not reach gateway", Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("gateway returned error status",
			"status", resp.StatusCode,
			"body", utils.Truncate(string(body), 200),
		)
		return nil, c.fail(errorFromResponse(resp.StatusCode, body))
	}

	if resp.Body == http.NoBody {
		return nil, c.fail(&Error{Kind: KindNoBody, Status: resp.StatusCode, Message: "gateway response has no body"})
	}

	streamOpts := make([]sse.Option, 0, len(c.streamOpts)+len(opts)+1)
	streamOpts = append(streamOpts, sse.WithLogger(c.logger))
	streamOpts = append(streamOpts, c.streamOpts...)
	streamOpts = append(streamOpts, opts...)

	c.metrics.StreamStarted()
	r := sse.NewReassembler(resp.Body, streamOpts...)

	for {
		f, err := r.Next()
		if err != nil {
			turn := c.finishTurn(conv, r, start, telemetry.OutcomeReadError)
			c.logger.Debug("stream interrupted",
				"error", err,
				"fragments", turn.Stats.Fragments,
			)
			return turn, c.fail(&Error{Kind: KindStream, Status: resp.StatusCode, Message: "stream interrupted", Err: err})
		}
		if f == nil {
			break
		}

		conv.AppendAssistantFragment(f.Content)
	}

	outcome := telemetry.OutcomeEOF
	if r.Stats().SawDone {
		outcome = telemetry.OutcomeDone
	}

	turn := c.finishTurn(conv, r, start, outcome)
	c.logger.Debug("stream finished",
		"outcome", outcome,
		"fragments", turn.Stats.Fragments,
		"skipped", turn.Stats.Skipped(),
		"elapsed", turn.Elapsed,
	)

	return turn, nil
}

func (c *Client) newRequest(ctx context.Context, conv *Conversation) (*http.Request, error) {
	msgs := conv.Messages()
	reqBody := completionRequest{
		Model:    c.model,
		Messages: make([]wireMessage, 0, len(msgs)),
		Stream:   true,
	}
	for _, m := range msgs {
		reqBody.Messages = append(reqBody.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", utils.UserAgent())

	if c.token == nil {
		return req, nil
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, c.fail(&Error{Kind: KindUnauthorized, Message: "no session token", Err: err})
	}
	if tok == "" {
		return nil, c.fail(&Error{Kind: KindUnauthorized, Message: "no session token"})
	}
	if credentials.TokenExpired(tok, c.now()) {
		return nil, c.fail(&Error{Kind: KindUnauthorized, Message: "session expired, sign in again"})
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	return req, nil
}

func (c *Client) finishTurn(conv *Conversation, r *sse.Reassembler, start time.Time, outcome string) *Turn {
	turn := &Turn{
		Stats:   r.Stats(),
		Elapsed: c.now().Sub(start),
	}
	if msg, ok := conv.Finish(); ok {
		turn.Message = &msg
	}

	c.metrics.StreamFinished(outcome, turn.Stats, turn.Elapsed)

	return turn
}

func (c *Client) fail(e *Error) *Error {
	c.metrics.Failure(e.Kind.String())
	return e
}
