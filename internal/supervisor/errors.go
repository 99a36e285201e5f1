package supervisor

import (
	"errors"
	"fmt"
)

// ErrSubscriptionClosed is returned by Recv after Close.
var ErrSubscriptionClosed = errors.New("supervisor: subscription closed")

// ConnectionError means the shared channel could not complete a call.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("supervisor %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StreamError is a Listen stream that failed after it was opened.
type StreamError struct {
	Alias string
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("listen %s: %v", e.Alias, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
