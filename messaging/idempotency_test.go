package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fawazv/hotelmq/contracts"
)

func TestIdempotencyGuard(t *testing.T) {
	t.Run("returns true exactly once per key within TTL", func(t *testing.T) {
		guard := NewIdempotencyGuard(time.Minute)
		defer guard.Close()

		assert.True(t, guard.ShouldProcess("webhook-evt-1"))
		assert.False(t, guard.ShouldProcess("webhook-evt-1"))
		assert.False(t, guard.ShouldProcess("webhook-evt-1"))

		assert.True(t, guard.ShouldProcess("webhook-evt-2"), "distinct keys are independent")
	})

	t.Run("expired keys may be processed again", func(t *testing.T) {
		now := time.Now()
		clock := func() time.Time { return now }
		guard := NewIdempotencyGuard(time.Minute, WithClock(func() time.Time { return clock() }))
		defer guard.Close()

		assert.True(t, guard.ShouldProcess("evt"))

		now = now.Add(61 * time.Second)
		assert.True(t, guard.ShouldProcess("evt"))
		assert.False(t, guard.ShouldProcess("evt"))
	})

	t.Run("concurrent deliveries of one key pass once", func(t *testing.T) {
		guard := NewIdempotencyGuard(time.Minute)
		defer guard.Close()

		var wg sync.WaitGroup
		var mu sync.Mutex
		passed := 0
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if guard.ShouldProcess("same-key") {
					mu.Lock()
					passed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, passed)
	})

	t.Run("sweep drops expired entries", func(t *testing.T) {
		now := time.Now()
		clock := func() time.Time { return now }
		guard := NewIdempotencyGuard(time.Minute, WithClock(func() time.Time { return clock() }))
		defer guard.Close()

		for i := 0; i < 10; i++ {
			guard.ShouldProcess(fmt.Sprintf("key-%d", i))
		}
		assert.Equal(t, 10, guard.Len())

		now = now.Add(2 * time.Minute)
		guard.sweep()
		assert.Equal(t, 0, guard.Len())
	})
}

func TestDeduplicate(t *testing.T) {
	keyByPayloadID := func(env *contracts.Envelope) string {
		var payload struct {
			ID string `json:"id"`
		}
		if err := env.Unmarshal(&payload); err != nil {
			return ""
		}
		return payload.ID
	}

	envelope := func(id string) *contracts.Envelope {
		return &contracts.Envelope{
			Event: "payment.completed",
			Data:  json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)),
		}
	}

	t.Run("duplicate deliveries are acknowledged without reaching the handler", func(t *testing.T) {
		guard := NewIdempotencyGuard(time.Minute)
		defer guard.Close()

		handled := 0
		handler := Deduplicate(guard, keyByPayloadID, HandlerFunc(func(ctx context.Context, env *contracts.Envelope) error {
			handled++
			return nil
		}))

		assert.NoError(t, handler.Handle(context.Background(), envelope("pay-1")))
		assert.NoError(t, handler.Handle(context.Background(), envelope("pay-1")), "a duplicate is a successful no-op")
		assert.NoError(t, handler.Handle(context.Background(), envelope("pay-2")))

		assert.Equal(t, 2, handled)
	})

	t.Run("empty key bypasses the guard", func(t *testing.T) {
		guard := NewIdempotencyGuard(time.Minute)
		defer guard.Close()

		handled := 0
		handler := Deduplicate(guard, func(*contracts.Envelope) string { return "" }, HandlerFunc(func(ctx context.Context, env *contracts.Envelope) error {
			handled++
			return nil
		}))

		assert.NoError(t, handler.Handle(context.Background(), envelope("pay-1")))
		assert.NoError(t, handler.Handle(context.Background(), envelope("pay-1")))

		assert.Equal(t, 2, handled)
	})

	t.Run("handler failure releases nothing, the key stays marked", func(t *testing.T) {
		guard := NewIdempotencyGuard(time.Minute)
		defer guard.Close()

		handler := Deduplicate(guard, keyByPayloadID, HandlerFunc(func(ctx context.Context, env *contracts.Envelope) error {
			return fmt.Errorf("downstream unavailable")
		}))

		assert.Error(t, handler.Handle(context.Background(), envelope("pay-3")))
		assert.NoError(t, handler.Handle(context.Background(), envelope("pay-3")), "redelivery of a failed key is treated as a duplicate")
	})
}
