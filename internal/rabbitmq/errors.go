package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// Connection errors
	ErrSupervisorClosed   = errors.New("rabbitmq: connection supervisor is closed")
	ErrMaxRetriesExceeded = errors.New("rabbitmq: maximum reconnection attempts exceeded")

	// Topology errors
	ErrInvalidTopology = errors.New("rabbitmq: invalid topology configuration")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Op       string // Operation that failed
	URL      string // Connection URL (sanitized)
	Err      error  // Underlying error
	Attempts int    // Number of attempts made
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("rabbitmq connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TopologyError represents a failed exchange, queue, or binding
// declaration. Declaration conflicts indicate a deployment mismatch
// between services sharing a name and are never retried.
type TopologyError struct {
	Component string // exchange, queue, or binding
	Name      string // Component name
	Err       error  // Underlying error
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("rabbitmq topology error: failed to declare %s %q: %v", e.Component, e.Name, e.Err)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

// SanitizeURL removes credentials from a connection URL for logging.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
