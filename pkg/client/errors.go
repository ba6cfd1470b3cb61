package client

import (
	"errors"
	"fmt"
)

// ErrStreamEmpty means the response closed before a single byte arrived.
var ErrStreamEmpty = errors.New("Stream ended without receiving data")

// StatusError is a non-success HTTP response from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Server error: %d - %s", e.StatusCode, e.Body)
}

// TransportError is a network failure while connecting or reading.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	switch e.Op {
	case "connect":
		return fmt.Sprintf("Failed to connect to research agent: %v", e.Err)
	case "read":
		return fmt.Sprintf("Research stream interrupted: %v", e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
