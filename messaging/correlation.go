package messaging

import (
	"context"

	"github.com/google/uuid"
)

// correlationKey is the context key for the correlation id. The id is
// carried explicitly on the context from an inbound message or request
// through every outbound publish and log line it triggers.
type correlationKey struct{}

// WithCorrelationID returns a context carrying the given correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id carried by ctx.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// EnsureCorrelationID returns ctx carrying a correlation id, generating a
// fresh one when ctx is the origin of a causal chain.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id, ok := CorrelationIDFromContext(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}
