package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errorResponse is the JSON error body returned on failures.
type errorResponse struct {
	Error string `json:"error"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages"`
	Stream   *bool         `json:"stream,omitempty"`
}

// completionChunk is one streamed chat.completion.chunk object.
type completionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// completion is the non-streaming chat.completion response.
type completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
}

type completionChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

var validRoles = map[string]bool{"system": true, "user": true, "assistant": true}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleChat authenticates, validates and answers one chat request.
func (s *Server) handleChat(c *fiber.Ctx) error {
	subject, err := s.authenticate(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		s.logger.Debug("rejecting unauthenticated request", "error", err)
		return c.Status(fiber.StatusUnauthorized).JSON(errorResponse{Error: err.Error()})
	}

	if !s.limiter.allow(subject) {
		s.metrics.RateLimited()
		s.logger.Warn("rate limit exceeded", "subject", subject)
		return c.Status(fiber.StatusTooManyRequests).JSON(errorResponse{Error: "rate limit exceeded"})
	}

	if s.config.ForceStatus != 0 {
		return c.Status(s.config.ForceStatus).JSON(errorResponse{Error: http.StatusText(s.config.ForceStatus)})
	}

	var req chatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "invalid JSON body"})
	}
	if err := validateRequest(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	id := "chatcmpl-" + uuid.NewString()
	reply := scriptedReply(s.config.Reply, req.Messages)

	s.logger.Debug("answering chat request",
		"subject", subject,
		"model", model,
		"message_count", len(req.Messages),
	)

	if req.Stream != nil && !*req.Stream {
		return c.JSON(completion{
			ID:      id,
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   model,
			Choices: []completionChoice{{
				Message:      chatMessage{Role: "assistant", Content: reply},
				FinishReason: "stop",
			}},
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe gives per-chunk flushing; see the fasthttp writeBodyChunked path.
	pr, pw := io.Pipe()
	go s.writeStream(pw, id, model, splitDeltas(reply, s.config.ChunkWords))
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func validateRequest(req *chatRequest) error {
	if len(req.Messages) == 0 {
		return errors.New("messages are required")
	}
	for i, m := range req.Messages {
		if !validRoles[m.Role] {
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
	}
	return nil
}

// writeStream writes the SSE body: a role chunk, one chunk per delta, a
// finish chunk, then the sentinel.
func (s *Server) writeStream(pw *io.PipeWriter, id, model string, deltas []string) {
	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	err := s.streamChunks(pw, id, model, deltas)
	if err != nil {
		s.logger.Debug("client stream ended early", "id", id, "error", err)
	}
	pw.CloseWithError(err)
}

func (s *Server) streamChunks(w io.Writer, id, model string, deltas []string) error {
	created := time.Now().Unix()
	chunk := func(delta chunkDelta, finish *string) completionChunk {
		return completionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
		}
	}

	if err := s.writeData(w, chunk(chunkDelta{Role: "assistant"}, nil)); err != nil {
		return err
	}

	for i, d := range deltas {
		if i > 0 && s.config.Delay > 0 {
			time.Sleep(s.config.Delay)
		}
		if s.config.KeepAlive {
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return err
			}
		}
		if err := s.writeData(w, chunk(chunkDelta{Content: d}, nil)); err != nil {
			return err
		}
	}

	stop := "stop"
	if err := s.writeData(w, chunk(chunkDelta{}, &stop)); err != nil {
		return err
	}

	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}

func (s *Server) writeData(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.metrics.ChunkSent()
	return nil
}
