package events

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for requests issued on, or pending at, a closed connection.
	ErrClosed = errors.New("event stream closed")

	// ErrStreamFailed wraps the transport error that ended an event stream.
	// Every request pending at that moment fails with an error matching it.
	ErrStreamFailed = errors.New("event stream failed")

	// errGroupDisposed tells the manager to retry against a fresh group.
	errGroupDisposed = errors.New("listener group disposed")
)

// RequestError is returned when the cluster explicitly rejects one request.
type RequestError struct {
	UID     string
	Code    int32
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s rejected (code %d): %s", e.UID, e.Code, e.Message)
}
