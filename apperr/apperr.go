// Package apperr classifies failures at the point of detection so callers can
// react to the kind of failure without inspecting messages.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation           Kind = "VALIDATION_FAILED"
	KindNotFound             Kind = "NOT_FOUND"
	KindBlocked              Kind = "BLOCKED"
	KindExtractionFailed     Kind = "EXTRACTION_FAILED"
	KindTransport            Kind = "TRANSPORT_ERROR"
	KindRewriteUnavailable   Kind = "REWRITE_UNAVAILABLE"
	KindNotFoundOptimization Kind = "OPTIMIZATION_NOT_FOUND"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindInternal             Kind = "INTERNAL"
)

// Error carries a Kind, a client-safe message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the same request may succeed later without changes.
func Retryable(kind Kind) bool {
	switch kind {
	case KindBlocked, KindTransport, KindRewriteUnavailable, KindRateLimited:
		return true
	default:
		return false
	}
}
