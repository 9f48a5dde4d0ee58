package messaging

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fawazv/hotelmq/contracts"
)

// ChannelProvider yields the current live broker channel. The connection
// supervisor implements it; components re-fetch the channel per operation
// because a cached handle is invalid after a reconnect.
type ChannelProvider interface {
	Channel(ctx context.Context) (*amqp.Channel, error)
}

// EnvelopePublisher is the publish surface consumed by the scheduler and
// the RPC components. EventPublisher implements it.
type EnvelopePublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, env *contracts.Envelope, options ...PublishOption) error
}

// Handler processes one delivered envelope. A nil return acknowledges the
// message. A TransientError return routes the message through the delay
// scheduler when one is configured; any other error dead-letters it.
type Handler interface {
	Handle(ctx context.Context, env *contracts.Envelope) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context, env *contracts.Envelope) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, env *contracts.Envelope) error {
	return f(ctx, env)
}

// RPCHandler answers one request envelope with one reply envelope.
type RPCHandler interface {
	HandleCall(ctx context.Context, request *contracts.Envelope) (*contracts.Envelope, error)
}

// RPCHandlerFunc is a function adapter for RPCHandler.
type RPCHandlerFunc func(ctx context.Context, request *contracts.Envelope) (*contracts.Envelope, error)

// HandleCall implements RPCHandler.
func (f RPCHandlerFunc) HandleCall(ctx context.Context, request *contracts.Envelope) (*contracts.Envelope, error) {
	return f(ctx, request)
}
