package messaging

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"

	"github.com/fawazv/hotelmq/contracts"
)

// mockHandler is a testify mock for Handler.
type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) Handle(ctx context.Context, env *contracts.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

// capturePublisher records publishes with their options applied. Options
// are functions and cannot be matched by a testify mock, so captures
// materialize them onto an amqp.Publishing instead.
type capturePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

type publishCall struct {
	exchange   string
	routingKey string
	env        *contracts.Envelope
	msg        amqp.Publishing
}

func (p *capturePublisher) Publish(ctx context.Context, exchange, routingKey string, env *contracts.Envelope, options ...PublishOption) error {
	msg := amqp.Publishing{}
	for _, opt := range options {
		opt(&msg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{
		exchange:   exchange,
		routingKey: routingKey,
		env:        env,
		msg:        msg,
	})
	return p.err
}

func (p *capturePublisher) published() []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishCall{}, p.calls...)
}

// fakeAck records how a delivery was settled.
type fakeAck struct {
	mu      sync.Mutex
	acked   int
	nacked  int
	requeue bool
}

func (a *fakeAck) Ack(multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked++
	return nil
}

func (a *fakeAck) Nack(multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked++
	a.requeue = requeue
	return nil
}
