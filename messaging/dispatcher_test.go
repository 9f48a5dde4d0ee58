package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fawazv/hotelmq/contracts"
)

func TestDispatcher(t *testing.T) {
	t.Run("routes envelope to the handler for its event", func(t *testing.T) {
		d := NewDispatcher()
		handler := &mockHandler{}
		env := &contracts.Envelope{Event: "reservation.created"}
		handler.On("Handle", mock.Anything, env).Return(nil)

		require.NoError(t, d.Register("reservation.created", handler))
		require.NoError(t, d.Handle(context.Background(), env))

		handler.AssertExpectations(t)
	})

	t.Run("dispatches on event name, not routing key", func(t *testing.T) {
		// One queue aggregates several patterns; only the event field decides.
		d := NewDispatcher()
		created := &mockHandler{}
		cancelled := &mockHandler{}
		created.On("Handle", mock.Anything, mock.Anything).Return(nil)

		require.NoError(t, d.Register("reservation.created", created))
		require.NoError(t, d.Register("reservation.cancelled", cancelled))

		require.NoError(t, d.Handle(context.Background(), &contracts.Envelope{Event: "reservation.created"}))

		created.AssertNumberOfCalls(t, "Handle", 1)
		cancelled.AssertNumberOfCalls(t, "Handle", 0)
	})

	t.Run("unregistered event is a permanent failure", func(t *testing.T) {
		d := NewDispatcher()

		err := d.Handle(context.Background(), &contracts.Envelope{Event: "billing.invoiced"})
		assert.ErrorIs(t, err, ErrNoHandler)
	})

	t.Run("propagates handler error", func(t *testing.T) {
		d := NewDispatcher()
		boom := errors.New("boom")
		require.NoError(t, d.Register("payment.refunded", HandlerFunc(func(ctx context.Context, env *contracts.Envelope) error {
			return boom
		})))

		err := d.Handle(context.Background(), &contracts.Envelope{Event: "payment.refunded"})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Register validates inputs", func(t *testing.T) {
		d := NewDispatcher()

		assert.Error(t, d.Register("notanevent", &mockHandler{}))
		assert.Error(t, d.Register("room.cleaned", nil))

		require.NoError(t, d.Register("room.cleaned", &mockHandler{}))
		assert.Error(t, d.Register("room.cleaned", &mockHandler{}), "duplicate registration")
	})

	t.Run("Events lists registrations", func(t *testing.T) {
		d := NewDispatcher()
		require.NoError(t, d.Register("guest.checkedIn", &mockHandler{}))
		require.NoError(t, d.Register("guest.checkedOut", &mockHandler{}))

		assert.ElementsMatch(t, []string{"guest.checkedIn", "guest.checkedOut"}, d.Events())
	})
}
