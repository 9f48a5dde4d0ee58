package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	t.Run("builds envelope with UTC timestamp and payload", func(t *testing.T) {
		env, err := NewEnvelope("reservation.created", map[string]string{
			"reservationId": "R1",
			"checkIn":       "2025-01-10",
		})

		require.NoError(t, err)
		assert.Equal(t, "reservation.created", env.Event)
		assert.False(t, env.CreatedAt.IsZero())
		assert.Equal(t, time.UTC, env.CreatedAt.Location())

		var data map[string]string
		require.NoError(t, env.Unmarshal(&data))
		assert.Equal(t, "R1", data["reservationId"])
	})

	t.Run("rejects event name without namespace", func(t *testing.T) {
		_, err := NewEnvelope("created", nil)
		assert.ErrorIs(t, err, ErrInvalidEventName)
	})

	t.Run("rejects empty event name", func(t *testing.T) {
		_, err := NewEnvelope("", nil)
		assert.ErrorIs(t, err, ErrMissingEvent)
	})

	t.Run("rejects unserializable payload", func(t *testing.T) {
		_, err := NewEnvelope("room.cleaned", make(chan int))

		var envErr *EnvelopeError
		require.ErrorAs(t, err, &envErr)
		assert.Equal(t, "encode", envErr.Op)
	})
}

func TestParseEnvelope(t *testing.T) {
	t.Run("round-trips event, data, and correlation id", func(t *testing.T) {
		original, err := NewEnvelope("payment.completed", map[string]interface{}{
			"paymentId": "P42",
			"amount":    120.50,
		})
		require.NoError(t, err)
		original.CorrelationID = "corr-123"

		body, err := json.Marshal(original)
		require.NoError(t, err)

		parsed, err := ParseEnvelope(body)
		require.NoError(t, err)
		assert.Equal(t, original.Event, parsed.Event)
		assert.Equal(t, original.CorrelationID, parsed.CorrelationID)
		assert.JSONEq(t, string(original.Data), string(parsed.Data))
		assert.True(t, original.CreatedAt.Equal(parsed.CreatedAt))
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		_, err := ParseEnvelope([]byte("{not json"))

		var envErr *EnvelopeError
		require.ErrorAs(t, err, &envErr)
		assert.Equal(t, "decode", envErr.Op)
	})

	t.Run("rejects body without event field", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"data":{}}`))
		assert.ErrorIs(t, err, ErrMissingEvent)
	})
}

func TestValidateEventName(t *testing.T) {
	valid := []string{"reservation.created", "payment.webhook.received", "room.cleaned"}
	for _, name := range valid {
		assert.NoError(t, ValidateEventName(name), name)
	}

	invalid := []string{"", "reservation", ".created", "reservation."}
	for _, name := range invalid {
		assert.Error(t, ValidateEventName(name), name)
	}
}

func TestEnvelopeDomain(t *testing.T) {
	env := &Envelope{Event: "housekeeping.taskAssigned"}
	assert.Equal(t, "housekeeping", env.Domain())
}
