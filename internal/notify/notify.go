// Package notify decides whether an out-of-band push event should surface a
// user-visible alert, deduplicates against the conversation currently on
// screen, and assembles the alert payload from the local contact roster plus
// the event's own hints.
package notify

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidPayload = errors.New("invalid push payload")
)

type Logger interface {
	Printf(format string, args ...any)
}

func logf(logger Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	logger.Printf(format, args...)
}
