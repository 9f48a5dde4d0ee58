package contracts

import (
	"encoding/json"
	"strings"
	"time"
)

// Envelope is the wire format of every message on the platform, regardless
// of which exchange or queue carries it:
//
//	{ "event": "<domain>.<verb>", "data": { ... }, "createdAt": "<ISO-8601>" }
//
// The correlation id additionally travels as an AMQP header so that it is
// visible to broker tooling without parsing the body. Error is only set on
// RPC replies whose handler failed.
type Envelope struct {
	Event         string          `json:"event"`
	Data          json.RawMessage `json:"data"`
	CreatedAt     time.Time       `json:"createdAt"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// NewEnvelope builds an envelope for the given event name, serializing data
// as the payload. The timestamp is set to the current UTC time.
func NewEnvelope(event string, data interface{}) (*Envelope, error) {
	if err := ValidateEventName(event); err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, &EnvelopeError{Op: "encode", Event: event, Err: err}
	}

	return &Envelope{
		Event:     event,
		Data:      body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ParseEnvelope decodes an envelope from a message body and validates its
// event name. A body that does not parse, or parses to an envelope without
// a valid event name, is a poison message and must be dead-lettered by the
// caller.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &EnvelopeError{Op: "decode", Err: err}
	}
	if err := ValidateEventName(env.Event); err != nil {
		return nil, err
	}
	return &env, nil
}

// Unmarshal decodes the envelope payload into v.
func (e *Envelope) Unmarshal(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return &EnvelopeError{Op: "decode payload", Event: e.Event, Err: err}
	}
	return nil
}

// Domain returns the namespace part of the event name, e.g. "reservation"
// for "reservation.created".
func (e *Envelope) Domain() string {
	if i := strings.Index(e.Event, "."); i > 0 {
		return e.Event[:i]
	}
	return e.Event
}

// ValidateEventName checks that an event name is dot-namespaced
// ("domain.verb"). Consumers dispatch on this field, not on the routing
// key, because one queue may aggregate multiple routing patterns.
func ValidateEventName(event string) error {
	if event == "" {
		return ErrMissingEvent
	}
	domain, verb, ok := strings.Cut(event, ".")
	if !ok || domain == "" || verb == "" {
		return &EnvelopeError{Op: "validate", Event: event, Err: ErrInvalidEventName}
	}
	return nil
}
