package domain

import "errors"

var ErrNotFound = errors.New("not found")

// ErrorKind classifies failures for retry decisions and user-facing messages.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindAuthentication   ErrorKind = "authentication"
	KindNetwork          ErrorKind = "network"
	KindTimeout          ErrorKind = "timeout"
	KindUpstreamProtocol ErrorKind = "upstream_protocol"
	KindStorage          ErrorKind = "storage"
	KindInternal         ErrorKind = "internal"
)

// Error carries a machine-classifiable kind alongside human text. HTTPStatus
// is set for HTTP-shaped upstream failures so retry policy can inspect it.
type Error struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error wrapping cause (cause may be nil).
func E(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the kind from err, or KindInternal when err carries none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// StatusOf extracts the upstream HTTP status from err, zero when absent.
func StatusOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.HTTPStatus
	}
	return 0
}
