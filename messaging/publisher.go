package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fawazv/hotelmq/contracts"
)

// CorrelationHeader is the AMQP header carrying the correlation id on
// every publish.
const CorrelationHeader = "correlationId"

// RetryCountHeader counts delayed redelivery attempts of one message.
const RetryCountHeader = "x-retry-count"

// EventPublisher serializes envelopes and publishes them. Messages are
// persistent by default. Publishing is fire-and-forget: delivery
// guarantees are left to consumer-side idempotency rather than publisher
// confirms, keeping the hot path non-blocking.
type EventPublisher struct {
	channels ChannelProvider
	logger   *slog.Logger
}

// EventPublisherOption configures the EventPublisher.
type EventPublisherOption func(*EventPublisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) EventPublisherOption {
	return func(p *EventPublisher) {
		p.logger = logger
	}
}

// NewEventPublisher creates a publisher borrowing channels from the
// supervisor.
func NewEventPublisher(channels ChannelProvider, options ...EventPublisherOption) *EventPublisher {
	p := &EventPublisher{
		channels: channels,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// PublishOption mutates the outgoing AMQP message.
type PublishOption func(*amqp.Publishing)

// WithHeader sets a custom header.
func WithHeader(key string, value interface{}) PublishOption {
	return func(msg *amqp.Publishing) {
		if msg.Headers == nil {
			msg.Headers = amqp.Table{}
		}
		msg.Headers[key] = value
	}
}

// WithExpiration sets a per-message TTL. Used by the delayed scheduler to
// hold a message in its holding queue for the delay duration.
func WithExpiration(ttl time.Duration) PublishOption {
	return func(msg *amqp.Publishing) {
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}
}

// WithReplyTo sets the reply queue for RPC requests.
func WithReplyTo(queue string) PublishOption {
	return func(msg *amqp.Publishing) {
		msg.ReplyTo = queue
	}
}

// WithTransient marks the message non-persistent. RPC traffic uses this:
// reply queues do not survive the client process anyway.
func WithTransient() PublishOption {
	return func(msg *amqp.Publishing) {
		msg.DeliveryMode = amqp.Transient
	}
}

// Publish serializes the envelope and publishes it to the exchange with
// the routing key. The active correlation id is stamped onto the envelope
// and the AMQP headers automatically; callers never pass it explicitly. A
// fresh id is generated when the context carries none and the envelope has
// none, i.e. at the origin of a causal chain.
func (p *EventPublisher) Publish(ctx context.Context, exchange, routingKey string, env *contracts.Envelope, options ...PublishOption) error {
	if env == nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: contracts.ErrMissingEvent}
	}
	if err := contracts.ValidateEventName(env.Event); err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: err}
	}

	if env.CorrelationID == "" {
		_, env.CorrelationID = EnsureCorrelationID(ctx)
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(env)
	if err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: err}
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     env.CreatedAt,
		CorrelationId: env.CorrelationID,
		Headers:       amqp.Table{CorrelationHeader: env.CorrelationID},
	}

	for _, opt := range options {
		opt(&msg)
	}

	ch, err := p.channels.Channel(ctx)
	if err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: err}
	}

	if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return &PublishError{Exchange: exchange, RoutingKey: routingKey, Err: err}
	}

	p.logger.Debug("published message",
		"event", env.Event,
		"exchange", exchange,
		"routingKey", routingKey,
		"correlationId", env.CorrelationID,
	)

	return nil
}
