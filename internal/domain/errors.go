package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindBadRequest ErrorKind = "bad_request"
	KindResource   ErrorKind = "resource"
	KindExtraction ErrorKind = "extraction"
	KindFetch      ErrorKind = "fetch"
	KindTranscode  ErrorKind = "transcode"
	KindNotFound   ErrorKind = "not_found"
	KindCancelled  ErrorKind = "cancelled"
	KindInternal   ErrorKind = "internal"
)

// ErrFormatUnavailable marks a failure caused by the requested format or
// quality selector. Jobs retry once with a relaxed selector when it is in
// the error chain.
var ErrFormatUnavailable = errors.New("requested format is not available")

// Error is a classified pipeline error.
// Message is safe to show to clients; Err holds the diagnostic cause.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error with the default user message for kind
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: DefaultMessage(kind), Err: err}
}

// BadRequest creates a client error whose message is shown verbatim
func BadRequest(op, message string) *Error {
	return &Error{Kind: KindBadRequest, Op: op, Message: message}
}

// NotFound creates an artifact lookup error
func NotFound(op string) *Error {
	return NewError(KindNotFound, op, nil)
}

// KindOf returns the kind of err. Context cancellation maps to
// KindCancelled, unclassified errors to KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindInternal
}

// PublicMessage returns the client-safe message for err
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return DefaultMessage(KindOf(err))
}

// DefaultMessage returns the generic user-facing text for a kind
func DefaultMessage(kind ErrorKind) string {
	switch kind {
	case KindBadRequest:
		return "invalid request"
	case KindResource:
		return "server is out of resources, try again later"
	case KindExtraction:
		return "could not extract media from this link"
	case KindFetch:
		return "failed to download media"
	case KindTranscode:
		return "failed to convert media"
	case KindNotFound:
		return "file not found or already downloaded"
	case KindCancelled:
		return "request cancelled"
	default:
		return "internal server error"
	}
}
