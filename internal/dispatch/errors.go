// Package dispatch is the client-side engine of one open conversation: a
// pausable single-worker queue for locally authored operations, a
// subscription state machine tied to the connection lifecycle, a sync
// coordinator that redelivers the outbox after every successful attach, and
// a router that turns inbound server events into display updates.
package dispatch

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrInvalidState = errors.New("invalid state")
	ErrQueueClosed  = errors.New("queue closed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// ServerError is a definitive protocol rejection: the server answered the
// request and refused it. Anything else (dead link, timeout) is transient.
type ServerError struct {
	Code int
	Text string
}

func (e *ServerError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("server error %d", e.Code)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Text)
}

func isTransient(err error) bool {
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
