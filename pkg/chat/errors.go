package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a chat request failure.
type Kind int

const (
	// KindTransport means the request never got a response.
	KindTransport Kind = iota + 1

	// KindHTTP is a non-success status without a more specific kind.
	KindHTTP

	// KindRateLimited is a 429 from the gateway.
	KindRateLimited

	// KindUnauthorized covers 401, 403 and a missing or expired session.
	KindUnauthorized

	// KindPaymentRequired is a 402, usually an exhausted model credit.
	KindPaymentRequired

	// KindUpstream is a 5xx from the gateway.
	KindUpstream

	// KindNoBody is a success status without a response body.
	KindNoBody

	// KindStream is a read failure after streaming began.
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindHTTP:
		return "http"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindPaymentRequired:
		return "payment_required"
	case KindUpstream:
		return "upstream"
	case KindNoBody:
		return "no_body"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a chat request failure surfaced to the caller.
type Error struct {
	Kind Kind

	// Status is the HTTP status code, or 0 when no response was received.
	Status int

	// Message is the user-facing description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrPaymentRequired = &Error{Kind: KindPaymentRequired}
	ErrUpstream        = &Error{Kind: KindUpstream}
	ErrNoBody          = &Error{Kind: KindNoBody}
	ErrStream          = &Error{Kind: KindStream}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

const rateLimitMessage = "rate limit exceeded, please try again later"

// errorFromResponse builds the error for a non-success response, preferring
// a message read from a JSON error body.
func errorFromResponse(status int, body []byte) *Error {
	e := &Error{Status: status}

	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case status == http.StatusPaymentRequired:
		e.Kind = KindPaymentRequired
	case status >= http.StatusInternalServerError:
		e.Kind = KindUpstream
	default:
		e.Kind = KindHTTP
	}

	if e.Kind == KindRateLimited {
		e.Message = rateLimitMessage
		return e
	}

	if msg := errorMessage(body); msg != "" {
		e.Message = msg
		return e
	}

	e.Message = fmt.Sprintf("gateway returned status %d", status)
	return e
}

// errorMessage extracts a message from {"error":"..."},
// {"error":{"message":"..."}} or {"message":"..."}.
func errorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	if len(payload.Error) > 0 {
		var s string
		if err := json.Unmarshal(payload.Error, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}

		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &obj); err == nil && strings.TrimSpace(obj.Message) != "" {
			return strings.TrimSpace(obj.Message)
		}
	}

	return strings.TrimSpace(payload.Message)
}
