package dahuaapi

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"
)

// TransportError is raised when the device could not be reached or the
// exchange was cut short.  These are usually worth retrying.
type TransportError struct {
	URL     string
	Err     error
	timeout bool
}

func newTransportError(url string, err error) *TransportError {
	te := &TransportError{URL: url, Err: err}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		te.timeout = true
	}

	return te
}

func (e *TransportError) Error() string {
	if e.timeout {
		return fmt.Sprintf("timeout talking to %s: %s", e.URL, e.Err)
	}
	return fmt.Sprintf("talking to %s: %s", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline being exceeded
func (e *TransportError) Timeout() bool { return e.timeout }

// StatusError is a non-2xx HTTP response from the device
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx response from %s: %d (%s)", e.URL, e.Code, e.Status)
}

// CommandFailedError means the device answered but did not acknowledge the
// request with OK
type CommandFailedError struct {
	URL  string
	Body string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command not acknowledged by device: %s", e.Body)
}

// IsUnauthorized reports whether err carries an HTTP 401 from the device
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// StatusCode returns the HTTP status of a StatusError in the chain, or 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsStatusError reports whether err is a non-2xx response from the device
func IsStatusError(err error) bool {
	return StatusCode(err) != 0
}

// isFallbackable decides whether a read helper may substitute its default
// value.  Authentication failures must always reach the caller.
func isFallbackable(err error) bool {
	return IsStatusError(err) && !IsUnauthorized(err)
}

type CommandErrorKind string

const (
	CommunicationError CommandErrorKind = "communication_error"
	TimeoutError       CommandErrorKind = "timeout_error"
	CommandFailed      CommandErrorKind = "command_failed"
)

// CommandError is the single shape user-initiated commands fail with
type CommandError struct {
	Kind   CommandErrorKind
	Detail string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *CommandError) Unwrap() error { return e.Err }

// NormalizeCommandError maps any error from a command method onto a
// CommandError.  A nil error stays nil.
func NormalizeCommandError(err error) error {
	if err == nil {
		return nil
	}

	var ce *CommandError
	if errors.As(err, &ce) {
		return ce
	}

	kind := CommandFailed
	var te *TransportError
	switch {
	case errors.As(err, &te) && te.Timeout():
		kind = TimeoutError
	case errors.Is(err, context.DeadlineExceeded):
		kind = TimeoutError
	case errors.As(err, &te), IsStatusError(err):
		kind = CommunicationError
	}

	return &CommandError{Kind: kind, Detail: err.Error(), Err: err}
}
