package chat

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced to API callers. Callers wrap these with %w and the
// HTTP layer classifies with errors.Is.
var (
	ErrMalformedRequest    = errors.New("malformed request")
	ErrInvalidModel        = errors.New("invalid model")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamFailure     = errors.New("upstream failure")
	ErrExecutableNotFound  = errors.New("executable not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ErrorKind is the machine-readable name of an error class
type ErrorKind string

const (
	KindMalformedRequest    ErrorKind = "malformed_request"
	KindInvalidModel        ErrorKind = "invalid_model"
	KindUpstreamTimeout     ErrorKind = "upstream_timeout"
	KindUpstreamFailure     ErrorKind = "upstream_failure"
	KindExecutableNotFound  ErrorKind = "executable_not_found"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindInternal            ErrorKind = "internal_error"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrMalformedRequest, KindMalformedRequest},
	{ErrInvalidModel, KindInvalidModel},
	{ErrUpstreamTimeout, KindUpstreamTimeout},
	{ErrUpstreamFailure, KindUpstreamFailure},
	{ErrExecutableNotFound, KindExecutableNotFound},
	{ErrUpstreamUnavailable, KindUpstreamUnavailable},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsUpstreamError reports whether err came from running the external tool
// rather than from validating the caller's request.
func IsUpstreamError(err error) bool {
	switch KindOf(err) {
	case KindUpstreamTimeout, KindUpstreamFailure, KindExecutableNotFound:
		return true
	}
	return false
}

// ExitError is an UpstreamFailure carrying the CLI's exit status
type ExitError struct {
	Code   int
	Detail string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit code %d: %s", ErrUpstreamFailure, e.Code, e.Detail)
}

func (e *ExitError) Unwrap() error {
	return ErrUpstreamFailure
}
