package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fawazv/hotelmq/contracts"
)

// Dispatcher routes envelopes to handlers by their dot-namespaced event
// name. One queue may aggregate multiple routing patterns, so consumers
// dispatch on the event field rather than on the routing key.
type Dispatcher struct {
	handlers map[string]Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// DispatcherOption configures the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Register binds a handler to an event name. Registering the same event
// twice is a configuration mistake and fails.
func (d *Dispatcher) Register(event string, handler Handler) error {
	if err := contracts.ValidateEventName(event); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("messaging: nil handler for event %q", event)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[event]; exists {
		return fmt.Errorf("messaging: handler already registered for event %q", event)
	}
	d.handlers[event] = handler
	return nil
}

// Handle implements Handler by routing the envelope to the handler
// registered for its event. An unregistered event is a permanent failure:
// the message dead-letters rather than spinning.
func (d *Dispatcher) Handle(ctx context.Context, env *contracts.Envelope) error {
	d.mu.RLock()
	handler, ok := d.handlers[env.Event]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNoHandler, env.Event)
	}

	return handler.Handle(ctx, env)
}

// Events returns the registered event names.
func (d *Dispatcher) Events() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	events := make([]string, 0, len(d.handlers))
	for event := range d.handlers {
		events = append(events, event)
	}
	return events
}
