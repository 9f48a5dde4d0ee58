package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fawazv/hotelmq/contracts"
)

// RPCServer consumes a well-known request queue and answers every request
// with exactly one reply. A failing handler still produces a reply with an
// error payload: a caller left to time out cannot tell a dead service from
// a declined request.
type RPCServer struct {
	channels  ChannelProvider
	publisher EnvelopePublisher
	logger    *slog.Logger
}

// RPCServerOption configures the RPCServer.
type RPCServerOption func(*RPCServer)

// WithRPCServerLogger sets the logger.
func WithRPCServerLogger(logger *slog.Logger) RPCServerOption {
	return func(s *RPCServer) {
		s.logger = logger
	}
}

// NewRPCServer creates a server.
func NewRPCServer(channels ChannelProvider, publisher EnvelopePublisher, options ...RPCServerOption) *RPCServer {
	s := &RPCServer{
		channels:  channels,
		publisher: publisher,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Serve consumes the request queue until the supervisor shuts down.
func (s *RPCServer) Serve(ctx context.Context, requestQueue string, handler RPCHandler) error {
	ch, err := s.channels.Channel(ctx)
	if err != nil {
		return fmt.Errorf("rpc serve %s: %w", requestQueue, err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("rpc serve %s: set qos: %w", requestQueue, err)
	}

	deliveries, err := ch.Consume(
		requestQueue,
		"",    // consumer tag
		false, // auto-ack: the request is settled after the reply is sent
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("rpc serve %s: %w", requestQueue, err)
	}

	s.logger.Info("rpc server listening", "requestQueue", requestQueue)

	go func() {
		for delivery := range deliveries {
			s.handleRequest(ctx, requestQueue, delivery.Body, delivery.ReplyTo, delivery.CorrelationId, &delivery, handler)
		}
		s.logger.Warn("rpc request channel closed", "requestQueue", requestQueue)
	}()

	return nil
}

// handleRequest answers one request: reply first, then settle the
// delivery. A request whose reply cannot be published is dead-lettered so
// the failure stays visible.
func (s *RPCServer) handleRequest(ctx context.Context, queue string, body []byte, replyTo, correlationID string, ack acknowledger, handler RPCHandler) {
	request, parseErr := contracts.ParseEnvelope(body)
	if parseErr != nil {
		s.logger.Error("dead-lettering malformed rpc request",
			"requestQueue", queue,
			"error", parseErr,
		)
		if replyTo != "" {
			s.reply(ctx, replyTo, correlationID, &contracts.Envelope{
				Event: "rpc.malformed",
				Data:  json.RawMessage("null"),
				Error: "malformed request envelope",
			})
		}
		s.nack(ack, queue)
		return
	}

	if correlationID == "" {
		correlationID = request.CorrelationID
	}
	msgCtx := WithCorrelationID(ctx, correlationID)

	if replyTo == "" {
		s.logger.Error("dead-lettering rpc request without reply target",
			"requestQueue", queue,
			"event", request.Event,
			"correlationId", correlationID,
		)
		s.nack(ack, queue)
		return
	}

	reply, err := handler.HandleCall(msgCtx, request)
	if err != nil {
		s.logger.Error("rpc handler failed, replying with error payload",
			"requestQueue", queue,
			"event", request.Event,
			"correlationId", correlationID,
			"error", err,
		)
		reply = &contracts.Envelope{
			Event: replyEvent(request.Event),
			Data:  json.RawMessage("null"),
			Error: err.Error(),
		}
	}
	if reply == nil {
		reply = &contracts.Envelope{
			Event: replyEvent(request.Event),
			Data:  json.RawMessage("null"),
		}
	}

	if !s.reply(msgCtx, replyTo, correlationID, reply) {
		s.nack(ack, queue)
		return
	}

	if ackErr := ack.Ack(false); ackErr != nil {
		s.logger.Error("failed to ack rpc request", "requestQueue", queue, "error", ackErr)
	}
}

// reply publishes one reply envelope carrying the request's correlation
// id to the reply target.
func (s *RPCServer) reply(ctx context.Context, replyTo, correlationID string, reply *contracts.Envelope) bool {
	reply.CorrelationID = correlationID

	err := s.publisher.Publish(ctx, "", replyTo, reply, WithTransient())
	if err != nil {
		s.logger.Error("failed to publish rpc reply",
			"replyTo", replyTo,
			"correlationId", correlationID,
			"error", err,
		)
		return false
	}
	return true
}

func (s *RPCServer) nack(ack acknowledger, queue string) {
	if err := ack.Nack(false, false); err != nil {
		s.logger.Error("failed to nack rpc request", "requestQueue", queue, "error", err)
	}
}

// replyEvent derives the reply event name from the request's.
func replyEvent(requestEvent string) string {
	return requestEvent + ".reply"
}
