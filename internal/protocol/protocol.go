// Package protocol defines the request/response envelopes exchanged over the
// broker and the transport metadata keys that carry correlation information.
package protocol

import (
	"errors"
	"fmt"

	"github.com/drblury/taskgate/internal/jsoncodec"
)

// Metadata keys used on transport messages.
const (
	// MetadataKeyCorrelationID links a response to its originating request.
	MetadataKeyCorrelationID = "correlation_id"

	// MetadataKeyReplyTo names the destination the caller wants the response
	// published to. When absent the gateway falls back to its default
	// response queue.
	MetadataKeyReplyTo = "reply_to"
)

// Response status values. Exactly one of Data/Error is populated depending on
// the status.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

var (
	ErrMissingID      = errors.New("request id is required")
	ErrMissingVersion = errors.New("request version is required")
	ErrMissingAction  = errors.New("request action is required")
)

// Request is the envelope consumed from the request queue. ID is both the
// correlation token and the idempotency key: redelivery of the same ID must
// not re-execute side effects.
type Request struct {
	ID      string         `json:"id"`
	Version string         `json:"version"`
	Action  string         `json:"action"`
	Data    map[string]any `json:"data"`
	Auth    string         `json:"auth"`
}

// Response is the envelope published to the reply destination.
type Response struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
	Data          any    `json:"data"`
	Error         string `json:"error,omitempty"`
}

// ParseRequest decodes and structurally validates a request envelope. A
// payload that fails here cannot be answered (there may be no usable
// correlation id), so callers route it to the dead-letter queue instead.
func ParseRequest(payload []byte) (*Request, error) {
	var req Request
	if err := jsoncodec.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request envelope: %w", err)
	}
	if req.ID == "" {
		return nil, ErrMissingID
	}
	if req.Version == "" {
		return nil, ErrMissingVersion
	}
	if req.Action == "" {
		return nil, ErrMissingAction
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	return &req, nil
}

// OK builds a success response correlated to the given request id.
func OK(correlationID string, data any) *Response {
	return &Response{
		CorrelationID: correlationID,
		Status:        StatusOK,
		Data:          data,
	}
}

// NewError builds an error response correlated to the given request id.
func NewError(correlationID, message string) *Response {
	return &Response{
		CorrelationID: correlationID,
		Status:        StatusError,
		Error:         message,
	}
}

// Encode serialises the response for the wire. The serialised form is also
// what the idempotency cache stores, so replays are byte-identical.
func (r *Response) Encode() ([]byte, error) {
	return jsoncodec.Marshal(r)
}

// ParseResponse decodes a response envelope received on a reply destination.
func ParseResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := jsoncodec.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	return &resp, nil
}

// UnprocessableRequestError wraps payloads the pipeline can never answer:
// requests that could not be parsed into an envelope, and requests whose
// response failed to encode. The poison middleware matches on it and forwards
// the original message to the dead-letter queue.
type UnprocessableRequestError struct {
	payload string
	err     error
}

// NewUnprocessable wraps a broken payload and its parse error.
func NewUnprocessable(payload []byte, err error) *UnprocessableRequestError {
	return &UnprocessableRequestError{payload: string(payload), err: err}
}

func (e *UnprocessableRequestError) Error() string {
	return "unprocessable request: " + e.err.Error()
}

func (e *UnprocessableRequestError) Unwrap() error {
	return e.err
}
