package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures so the API boundary can map them to codes
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindUpstream
	KindCorrelationTimeout
	KindPersistence
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindUpstream:
		return "upstream"
	case KindCorrelationTimeout:
		return "correlation_timeout"
	case KindPersistence:
		return "persistence"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Code returns the HTTP-like code used in response envelopes
func (k ErrorKind) Code() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindUpstream:
		return http.StatusBadGateway
	case KindCorrelationTimeout:
		return http.StatusGatewayTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind and a message that is safe to show to API callers.
// The wrapped error stays inside the process.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the caller-safe message of err
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

func ValidationError(format string, a ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, a...)}
}

func NotFoundError(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func AuthorizationError(message string) error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func UpstreamError(message string, err error) error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

func CorrelationTimeoutError(message string) error {
	return &Error{Kind: KindCorrelationTimeout, Message: message}
}

func PersistenceError(message string, err error) error {
	return &Error{Kind: KindPersistence, Message: message, Err: err}
}

func RateLimitedError() error {
	return &Error{Kind: KindRateLimited, Message: "too many requests"}
}
