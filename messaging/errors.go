package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrRPCTimeout is returned when no reply arrives within the
	// caller's timeout. It is distinct from RPCDeclinedError so callers
	// can tell an unreachable service from a declined request.
	ErrRPCTimeout = errors.New("messaging: rpc call timed out")

	// ErrRPCClientClosed is returned for calls made after Close.
	ErrRPCClientClosed = errors.New("messaging: rpc client is closed")

	// ErrNoHandler is returned by the dispatcher when no handler is
	// registered for an envelope's event name.
	ErrNoHandler = errors.New("messaging: no handler registered for event")
)

// RPCDeclinedError carries the error payload of a reply whose handler
// failed. The server answered; it just said no.
type RPCDeclinedError struct {
	Event   string // Request event name
	Message string // Error payload from the reply envelope
}

func (e *RPCDeclinedError) Error() string {
	return fmt.Sprintf("rpc request %q declined: %s", e.Event, e.Message)
}

// PublishError wraps a failed publish with its destination.
type PublishError struct {
	Exchange   string
	RoutingKey string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s/%s failed: %v", e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
