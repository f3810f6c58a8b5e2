package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrBaseURLRequired is returned when the remote API base URL is missing
	ErrBaseURLRequired = errors.New("remote base URL is required")
	// ErrInvalidBaseURL is returned when the base URL cannot be parsed as an absolute URL
	ErrInvalidBaseURL = errors.New("remote base URL must be an absolute http(s) URL")
	// ErrInvalidJSON is returned when a response body is not valid JSON
	ErrInvalidJSON = errors.New("invalid JSON body")
)

// defaultFailureMessage is used when an application failure carries no message.
const defaultFailureMessage = "Request failed"

// Kind classifies a failed call. Consumers that only need the unified error
// channel can ignore it and use Error().
type Kind int

const (
	// KindTransport covers failures before a response could be interpreted:
	// dial errors, TLS, timeouts, unreadable or non-JSON success bodies.
	KindTransport Kind = iota
	// KindProtocol is a non-2xx HTTP status.
	KindProtocol
	// KindApplication is a 2xx response whose envelope declares success:false.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindApplication:
		return "application"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the single error type surfaced by the remote client.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Body       []byte
	Err        error
}

// Error returns the message text verbatim so that `{"success":false,"message":"X"}`
// surfaces as "X".
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return defaultFailureMessage
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of err, or false when err did not come from this package.
func KindOf(err error) (Kind, bool) {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind, true
	}

	return 0, false
}
