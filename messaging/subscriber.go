package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fawazv/hotelmq/contracts"
	"github.com/fawazv/hotelmq/internal/reliability"
)

// acknowledger is the subset of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Subscriber consumes queues and settles each delivery exactly once:
// acked on handler success, nacked without requeue otherwise so the broker
// routes it to the queue's dead-letter exchange. Requeueing into the same
// queue is never done; it spins on poison messages.
//
// Transient handler failures can instead be rescheduled through a
// DelayedScheduler with backoff, which acks the original delivery and
// republishes a delayed copy carrying an incremented retry counter.
type Subscriber struct {
	channels ChannelProvider
	logger   *slog.Logger
	prefetch int
}

// SubscriberOption configures the Subscriber.
type SubscriberOption func(*Subscriber)

// WithSubscriberLogger sets the logger.
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.logger = logger
	}
}

// WithPrefetch sets the per-consumer prefetch count. The default of 1
// preserves per-queue delivery order for a single consumer.
func WithPrefetch(count int) SubscriberOption {
	return func(s *Subscriber) {
		s.prefetch = count
	}
}

// NewSubscriber creates a subscriber borrowing channels from the
// supervisor.
func NewSubscriber(channels ChannelProvider, options ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		channels: channels,
		logger:   slog.Default(),
		prefetch: 1,
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// subscribeOptions configures one subscription.
type subscribeOptions struct {
	retryScheduler *DelayedScheduler
	retryPolicy    reliability.RetryPolicy
	consumerTag    string
}

// SubscribeOption configures a single Subscribe call.
type SubscribeOption func(*subscribeOptions)

// WithRetry routes transient handler failures through the scheduler
// instead of the dead-letter exchange, bounded by the policy. The
// scheduler's target must redeliver into the subscribed queue.
func WithRetry(scheduler *DelayedScheduler, policy reliability.RetryPolicy) SubscribeOption {
	return func(o *subscribeOptions) {
		o.retryScheduler = scheduler
		o.retryPolicy = policy
	}
}

// WithConsumerTag sets the consumer tag.
func WithConsumerTag(tag string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.consumerTag = tag
	}
}

// Subscribe starts consuming the queue and runs until the process shuts
// the supervisor down; there is no per-subscription cancellation surface.
func (s *Subscriber) Subscribe(ctx context.Context, queue string, handler Handler, options ...SubscribeOption) error {
	opts := subscribeOptions{
		consumerTag: fmt.Sprintf("hotelmq-%s", uuid.NewString()[:8]),
	}
	for _, opt := range options {
		opt(&opts)
	}

	ch, err := s.channels.Channel(ctx)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", queue, err)
	}

	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("subscribe %s: set qos: %w", queue, err)
	}

	deliveries, err := ch.Consume(
		queue,
		opts.consumerTag,
		false, // auto-ack: settlement must follow handler outcome
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", queue, err)
	}

	s.logger.Info("subscribed to queue",
		"queue", queue,
		"consumerTag", opts.consumerTag,
		"prefetch", s.prefetch,
	)

	go s.consume(ctx, queue, deliveries, handler, opts)
	return nil
}

// consume drains the delivery channel until the broker closes it.
func (s *Subscriber) consume(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handler Handler, opts subscribeOptions) {
	for delivery := range deliveries {
		s.handleDelivery(ctx, queue, delivery.Body, delivery.Headers, &delivery, handler, opts)
	}
	s.logger.Warn("delivery channel closed", "queue", queue)
}

// handleDelivery settles one message: received -> dispatched -> either
// acked-success or nacked-to-dlq. A message is never acknowledged twice
// and never requeued into its own queue.
func (s *Subscriber) handleDelivery(ctx context.Context, queue string, body []byte, headers amqp.Table, ack acknowledger, handler Handler, opts subscribeOptions) {
	env, err := contracts.ParseEnvelope(body)
	if err != nil {
		s.logger.Error("dead-lettering malformed message",
			"queue", queue,
			"error", err,
		)
		s.nack(ack, queue)
		return
	}

	msgCtx := ctx
	if env.CorrelationID != "" {
		msgCtx = WithCorrelationID(ctx, env.CorrelationID)
	} else {
		msgCtx, env.CorrelationID = EnsureCorrelationID(ctx)
	}

	err = handler.Handle(msgCtx, env)
	if err == nil {
		if ackErr := ack.Ack(false); ackErr != nil {
			s.logger.Error("failed to ack message", "queue", queue, "error", ackErr)
		}
		return
	}

	if reliability.IsTransient(err) && opts.retryScheduler != nil {
		attempt := retryCount(headers)
		if ok, delay := opts.retryPolicy.ShouldRetry(attempt, err); ok {
			retryErr := opts.retryScheduler.ScheduleRetry(msgCtx, env, attempt+1, delay)
			if retryErr == nil {
				s.logger.Warn("scheduled delayed retry",
					"queue", queue,
					"event", env.Event,
					"attempt", attempt+1,
					"delay", delay,
					"correlationId", env.CorrelationID,
					"error", err,
				)
				if ackErr := ack.Ack(false); ackErr != nil {
					s.logger.Error("failed to ack retried message", "queue", queue, "error", ackErr)
				}
				return
			}
			s.logger.Error("failed to schedule retry, dead-lettering",
				"queue", queue,
				"event", env.Event,
				"error", retryErr,
			)
		}
	}

	s.logger.Error("dead-lettering failed message",
		"queue", queue,
		"event", env.Event,
		"correlationId", env.CorrelationID,
		"error", err,
	)
	s.nack(ack, queue)
}

// nack dead-letters the delivery. requeue is always false.
func (s *Subscriber) nack(ack acknowledger, queue string) {
	if err := ack.Nack(false, false); err != nil {
		s.logger.Error("failed to nack message", "queue", queue, "error", err)
	}
}

// retryCount reads the delayed-retry counter header. The broker hands
// header numbers back with varying integer widths.
func retryCount(headers amqp.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}
