package directory

import (
	"errors"
	"fmt"
)

var (
	ErrRequest         = errors.New("directory request failed")
	ErrInvalidResponse = errors.New("invalid response from directory")
	ErrMissingToken    = errors.New("login response carried no token")
	ErrMissingBaseURL  = errors.New("missing directory base URL")
)

// RemoteError is a non-2xx reply from the directory. Message is the
// server-provided text from the HttpResponse envelope and may be empty.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", ErrRequest, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrRequest, e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return ErrRequest
}

// MessageOf returns the server message carried by err, or "" when err is
// not a RemoteError (network failures, cancellations).
func MessageOf(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Message
	}
	return ""
}
