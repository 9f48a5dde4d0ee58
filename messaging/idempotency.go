package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fawazv/hotelmq/contracts"
)

// IdempotencyGuard drops duplicate webhook callbacks and duplicate event
// redeliveries inside one process. ShouldProcess returns true exactly once
// per key within the TTL window; the check and the mark happen under one
// lock, so concurrent deliveries of the same key on this process cannot
// both pass.
//
// The guard is best-effort and time-bounded, not a transactional lock:
// services running multiple replicas still see the same key on different
// processes, so downstream effects must themselves be idempotent.
type IdempotencyGuard struct {
	ttl    time.Duration
	mu     sync.Mutex
	seen   map[string]time.Time
	now    func() time.Time
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once
}

// GuardOption configures the IdempotencyGuard.
type GuardOption func(*IdempotencyGuard)

// WithGuardLogger sets the logger.
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *IdempotencyGuard) {
		g.logger = logger
	}
}

// WithClock injects the time source for deterministic tests.
func WithClock(now func() time.Time) GuardOption {
	return func(g *IdempotencyGuard) {
		g.now = now
	}
}

// NewIdempotencyGuard creates a guard whose entries expire after ttl. A
// janitor sweeps expired entries so the seen-set does not grow with
// traffic.
func NewIdempotencyGuard(ttl time.Duration, options ...GuardOption) *IdempotencyGuard {
	g := &IdempotencyGuard{
		ttl:    ttl,
		seen:   make(map[string]time.Time),
		now:    time.Now,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}

	for _, opt := range options {
		opt(g)
	}

	go g.janitor()
	return g
}

// ShouldProcess reports whether the key is new within the TTL window,
// marking it seen when it is. A false return means "already processed":
// the caller treats the delivery as a successful no-op, not an error.
func (g *IdempotencyGuard) ShouldProcess(key string) bool {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if insertedAt, ok := g.seen[key]; ok && now.Sub(insertedAt) < g.ttl {
		return false
	}
	g.seen[key] = now
	return true
}

// Len returns the number of tracked keys, expired entries included until
// the next sweep.
func (g *IdempotencyGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Close stops the janitor.
func (g *IdempotencyGuard) Close() {
	g.once.Do(func() {
		close(g.done)
	})
}

// Deduplicate wraps a handler so duplicate deliveries are acknowledged as
// successful no-ops instead of reaching it. key extracts the dedup
// identity from the envelope, typically a webhook event id or a domain
// entity id carried in the payload; an empty key bypasses the guard.
func Deduplicate(guard *IdempotencyGuard, key func(*contracts.Envelope) string, next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, env *contracts.Envelope) error {
		k := key(env)
		if k == "" || guard.ShouldProcess(k) {
			return next.Handle(ctx, env)
		}

		guard.logger.Info("dropping duplicate delivery",
			"event", env.Event,
			"key", k,
			"correlationId", env.CorrelationID,
		)
		return nil
	})
}

// janitor periodically drops expired entries.
func (g *IdempotencyGuard) janitor() {
	interval := g.ttl
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.done:
			return
		}
	}
}

// sweep removes entries older than the TTL.
func (g *IdempotencyGuard) sweep() {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, insertedAt := range g.seen {
		if now.Sub(insertedAt) >= g.ttl {
			delete(g.seen, key)
			removed++
		}
	}

	if removed > 0 {
		g.logger.Debug("swept expired idempotency entries", "removed", removed, "remaining", len(g.seen))
	}
}
