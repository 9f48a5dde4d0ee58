package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingEvent is returned when an envelope has no event name.
	ErrMissingEvent = errors.New("contracts: envelope has no event name")

	// ErrInvalidEventName is returned when an event name is not of the
	// form "domain.verb".
	ErrInvalidEventName = errors.New("contracts: event name must be dot-namespaced")
)

// EnvelopeError wraps a failure to encode, decode, or validate an envelope.
type EnvelopeError struct {
	Op    string // Operation that failed
	Event string // Event name, when known
	Err   error  // Underlying error
}

func (e *EnvelopeError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("envelope error: %s failed for event %q: %v", e.Op, e.Event, e.Err)
	}
	return fmt.Sprintf("envelope error: %s failed: %v", e.Op, e.Err)
}

func (e *EnvelopeError) Unwrap() error {
	return e.Err
}
