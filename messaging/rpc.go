package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fawazv/hotelmq/contracts"
)

// RPCClient implements synchronous-style request/response over
// asynchronous queues. One strategy only: each client declares a single
// exclusive auto-delete reply queue at construction and matches replies to
// in-flight calls by correlation id. The pending listener is registered
// before the request is published, so a reply can never arrive before
// anyone is watching for it.
type RPCClient struct {
	publisher  EnvelopePublisher
	logger     *slog.Logger
	replyQueue string
	pending    map[string]chan *contracts.Envelope
	mu         sync.Mutex
	done       chan struct{}
	closeOnce  sync.Once
}

// RPCClientOption configures the RPCClient.
type RPCClientOption func(*RPCClient)

// WithRPCLogger sets the logger.
func WithRPCLogger(logger *slog.Logger) RPCClientOption {
	return func(c *RPCClient) {
		c.logger = logger
	}
}

// NewRPCClient declares the client's reply queue and starts the reply
// listener. The queue is broker-named, exclusive, and auto-deleted with
// the client's channel.
func NewRPCClient(ctx context.Context, channels ChannelProvider, publisher EnvelopePublisher, options ...RPCClientOption) (*RPCClient, error) {
	c := &RPCClient{
		publisher: publisher,
		logger:    slog.Default(),
		pending:   make(map[string]chan *contracts.Envelope),
		done:      make(chan struct{}),
	}

	for _, opt := range options {
		opt(c)
	}

	ch, err := channels.Channel(ctx)
	if err != nil {
		return nil, fmt.Errorf("rpc client: %w", err)
	}

	queue, err := ch.QueueDeclare(
		"",    // broker-generated name
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("rpc client: declare reply queue: %w", err)
	}
	c.replyQueue = queue.Name

	deliveries, err := ch.Consume(
		queue.Name,
		"",   // consumer tag
		true, // auto-ack: a lost reply is indistinguishable from a timeout anyway
		true, // exclusive
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("rpc client: consume reply queue: %w", err)
	}

	go c.consumeReplies(deliveries)

	c.logger.Debug("rpc client ready", "replyQueue", c.replyQueue)
	return c, nil
}

// Call publishes the request to the callee's well-known request queue and
// waits for the matching reply. It fails exactly once: with ErrRPCTimeout
// when no reply arrives within timeout, or with RPCDeclinedError when the
// server answered with an error payload.
func (c *RPCClient) Call(ctx context.Context, requestQueue string, request *contracts.Envelope, timeout time.Duration) (*contracts.Envelope, error) {
	correlationID := uuid.NewString()
	replyChan := make(chan *contracts.Envelope, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, ErrRPCClientClosed
	default:
	}
	c.pending[correlationID] = replyChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, correlationID)
		c.mu.Unlock()
	}()

	request.CorrelationID = correlationID
	err := c.publisher.Publish(ctx, "", requestQueue, request,
		WithReplyTo(c.replyQueue),
		WithTransient(),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc call %q: %w", request.Event, err)
	}

	select {
	case reply := <-replyChan:
		if reply.Error != "" {
			return nil, &RPCDeclinedError{Event: request.Event, Message: reply.Error}
		}
		return reply, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("rpc call %q: %w after %v", request.Event, ErrRPCTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrRPCClientClosed
	}
}

// Close stops the reply listener. In-flight calls fail with
// ErrRPCClientClosed; the reply queue auto-deletes with the channel.
func (c *RPCClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// consumeReplies routes incoming replies to their pending calls.
func (c *RPCClient) consumeReplies(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("rpc reply channel closed", "replyQueue", c.replyQueue)
				return
			}
			c.handleReply(delivery.CorrelationId, delivery.Body)
		case <-c.done:
			return
		}
	}
}

// handleReply resolves the pending call matching the correlation id. A
// reply with no pending call (late arrival after timeout) is dropped.
func (c *RPCClient) handleReply(correlationID string, body []byte) {
	env, err := contracts.ParseEnvelope(body)
	if err != nil {
		c.logger.Error("discarding malformed rpc reply", "error", err)
		return
	}
	if correlationID == "" {
		correlationID = env.CorrelationID
	}

	c.mu.Lock()
	replyChan, ok := c.pending[correlationID]
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("dropping unmatched rpc reply",
			"correlationId", correlationID,
			"event", env.Event,
		)
		return
	}

	// Buffered by one; at most one reply is expected per request.
	select {
	case replyChan <- env:
	default:
	}
}
