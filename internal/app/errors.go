package app

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error for the boundary layer.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindConflict    ErrorKind = "conflict"
	KindForbidden   ErrorKind = "forbidden"
	KindUnavailable ErrorKind = "unavailable"
	KindGateway     ErrorKind = "gateway"
	KindInternal    ErrorKind = "internal"
)

// Error is a domain error with an explicit kind and message. Gateway errors
// additionally carry the upstream status and message verbatim so the boundary
// can reflect or normalize them without string-matching diagnostic prose.
type Error struct {
	Kind            ErrorKind
	Message         string
	UpstreamStatus  int
	UpstreamMessage string
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf extracts the error kind; unexpected errors are internal.
func KindOf(err error) ErrorKind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// AsError returns the typed error when err carries one.
func AsError(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func unavailablef(format string, args ...any) error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...)}
}

func gatewayError(upstreamStatus int, upstreamMessage string) error {
	return &Error{
		Kind:            KindGateway,
		Message:         fmt.Sprintf("payment gateway error: %s", upstreamMessage),
		UpstreamStatus:  upstreamStatus,
		UpstreamMessage: upstreamMessage,
	}
}
