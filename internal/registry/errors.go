package registry

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed registry operation.
type ErrorKind string

const (
	ErrorNetwork     ErrorKind = "network"
	ErrorAuth        ErrorKind = "auth"
	ErrorNotFound    ErrorKind = "not_found"
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorServer      ErrorKind = "server"
	// ErrorProtocol marks a server contract violation observed on the
	// client side, e.g. duplicate items across pages or a malformed
	// cursor. Never masked, always surfaced.
	ErrorProtocol ErrorKind = "protocol"
)

// Message returns a short human-readable description for the UI.
func (k ErrorKind) Message() string {
	switch k {
	case ErrorNetwork:
		return "network error reaching the registry"
	case ErrorAuth:
		return "authentication failed"
	case ErrorNotFound:
		return "resource not found"
	case ErrorRateLimited:
		return "rate limited by the registry"
	case ErrorServer:
		return "registry server error"
	case ErrorProtocol:
		return "registry returned inconsistent data"
	default:
		return "registry error"
	}
}

// Error is the typed failure surfaced by the registry client and by the
// fetch layer above it.
type Error struct {
	Kind   ErrorKind
	Op     string // operation, e.g. "list repositories"
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed registry error.
func NewError(kind ErrorKind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// WrapError builds a typed registry error around an underlying cause.
func WrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// AsError extracts the typed error from an error chain.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// KindOf returns the classification of err. Untyped errors are treated
// as transport failures.
func KindOf(err error) ErrorKind {
	if re, ok := AsError(err); ok {
		return re.Kind
	}
	return ErrorNetwork
}

// IsRateLimited reports whether err is a transient rate-limit failure.
func IsRateLimited(err error) bool { return KindOf(err) == ErrorRateLimited }

// IsNotFound reports whether err means the resource is gone upstream.
func IsNotFound(err error) bool { return KindOf(err) == ErrorNotFound }
