package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fawazv/hotelmq/contracts"
	"github.com/fawazv/hotelmq/internal/rabbitmq"
)

// DelayedScheduler delivers envelopes after a delay without broker-native
// scheduling support. It publishes directly into a holding queue with a
// per-message TTL; when the message expires, the broker dead-letters it
// into the configured target exchange and routing key, where a normal
// consumer receives it as an ordinary envelope. The holding queue never
// has a consumer attached.
//
// Expiry ordering is queue-local FIFO only when no message ahead blocks
// the head of the queue: a message behind one with a longer TTL expires
// late. Callers must not depend on strict delivery-time ordering across
// different delays.
type DelayedScheduler struct {
	publisher        EnvelopePublisher
	holdingQueue     string
	targetExchange   string
	targetRoutingKey string
	logger           *slog.Logger
}

// SchedulerConfig names the holding queue and the route expired messages
// are delivered through.
type SchedulerConfig struct {
	HoldingQueue     string
	TargetExchange   string
	TargetRoutingKey string
}

// SchedulerOption configures the DelayedScheduler.
type SchedulerOption func(*DelayedScheduler)

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *DelayedScheduler) {
		s.logger = logger
	}
}

// NewDelayedScheduler creates a scheduler. The holding queue must be
// declared with Topology before scheduling.
func NewDelayedScheduler(publisher EnvelopePublisher, cfg SchedulerConfig, options ...SchedulerOption) (*DelayedScheduler, error) {
	if cfg.HoldingQueue == "" {
		return nil, fmt.Errorf("messaging: scheduler requires a holding queue name")
	}
	if cfg.TargetExchange == "" && cfg.TargetRoutingKey == "" {
		return nil, fmt.Errorf("messaging: scheduler requires a target route")
	}

	s := &DelayedScheduler{
		publisher:        publisher,
		holdingQueue:     cfg.HoldingQueue,
		targetExchange:   cfg.TargetExchange,
		targetRoutingKey: cfg.TargetRoutingKey,
		logger:           slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Topology returns the holding queue declaration: a durable queue whose
// dead-letter route points at the scheduler's target. Register it with the
// supervisor so it survives reconnects.
func (s *DelayedScheduler) Topology() rabbitmq.Topology {
	return rabbitmq.Topology{
		Queues: []rabbitmq.QueueSpec{
			{
				Name:                 s.holdingQueue,
				Durable:              true,
				DeadLetterExchange:   s.targetExchange,
				DeadLetterRoutingKey: s.targetRoutingKey,
			},
		},
	}
}

// ScheduleAfter delivers the envelope through the target route once delay
// has elapsed. A zero or negative delay short-circuits to an immediate
// publish: a zero-TTL message would still pay a full expire-and-redeliver
// round trip and can race consumer startup.
func (s *DelayedScheduler) ScheduleAfter(ctx context.Context, delay time.Duration, env *contracts.Envelope, options ...PublishOption) error {
	if delay <= 0 {
		return s.publisher.Publish(ctx, s.targetExchange, s.targetRoutingKey, env, options...)
	}

	options = append(options, WithExpiration(delay))
	if err := s.publisher.Publish(ctx, "", s.holdingQueue, env, options...); err != nil {
		return err
	}

	s.logger.Debug("scheduled delayed delivery",
		"event", env.Event,
		"holdingQueue", s.holdingQueue,
		"delay", delay,
		"correlationId", env.CorrelationID,
	)
	return nil
}

// ScheduleRetry schedules a delayed redelivery attempt, stamping the
// retry counter so the consumer can bound attempts.
func (s *DelayedScheduler) ScheduleRetry(ctx context.Context, env *contracts.Envelope, attempt int, delay time.Duration) error {
	return s.ScheduleAfter(ctx, delay, env, WithHeader(RetryCountHeader, int32(attempt)))
}
