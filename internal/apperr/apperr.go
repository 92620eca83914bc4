// Package apperr defines the proxy's closed set of error kinds and how they
// map onto HTTP status codes and the downstream error payload shape.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind is one of the five error classes the proxy ever surfaces downstream.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindAuthentication Kind = "authentication"
	KindRateLimit      Kind = "rate_limit"
	KindAPI            Kind = "api"
	KindInternal       Kind = "internal"
)

// Error is the proxy's single error type. Everything surfaced to a caller,
// whether as a pre-stream JSON body or a post-stream SSE error event, comes
// wrapped in one of these.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error, preserving it for
// Unwrap/errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// HTTPStatus maps a Kind to the status code used for pre-stream failures.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromUpstreamStatus maps an upstream HTTP status code to an error Kind,
// per spec: 400 -> invalid_request, 401/403 -> authentication,
// 429 -> rate_limit, 5xx -> api, anything else -> api.
func FromUpstreamStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindInvalidRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindAPI
	default:
		return KindAPI
	}
}

// Payload is the downstream protocol's error object shape:
// {"type": "error", "error": {"type": <kind>, "message": <string>}}.
type Payload struct {
	Type  string      `json:"type"`
	Error PayloadBody `json:"error"`
}

type PayloadBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToPayload renders the error in the downstream protocol's error shape.
func (e *Error) ToPayload() Payload {
	return Payload{
		Type: "error",
		Error: PayloadBody{
			Type:    string(e.Kind),
			Message: e.Message,
		},
	}
}
