package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionSupervisor owns the process-wide connection and channel to the
// broker. Every other component borrows the channel per operation through
// Channel and must not cache it across a reconnect: a close notification
// clears the cached handle and the next Channel call rebuilds it, replaying
// all registered topology before the channel is handed out.
type ConnectionSupervisor struct {
	url         string
	conn        *amqp.Connection
	ch          *amqp.Channel
	mu          sync.Mutex // guards conn, ch, topologies, closed
	rebuildMu   sync.Mutex // serializes the dial/backoff loop; Close never takes it
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	logger      *slog.Logger
	topologies  []Topology
	done        chan struct{}
	closed      bool
}

// SupervisorOption configures the ConnectionSupervisor.
type SupervisorOption func(*ConnectionSupervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SupervisorOption {
	return func(s *ConnectionSupervisor) {
		s.logger = logger
	}
}

// WithReconnectDelay sets the initial reconnection delay.
func WithReconnectDelay(delay time.Duration) SupervisorOption {
	return func(s *ConnectionSupervisor) {
		s.baseDelay = delay
	}
}

// WithMaxReconnectDelay caps the backoff.
func WithMaxReconnectDelay(delay time.Duration) SupervisorOption {
	return func(s *ConnectionSupervisor) {
		s.maxDelay = delay
	}
}

// WithMaxAttempts bounds connection attempts per Channel call. The default
// of -1 retries indefinitely, so a process whose broker is permanently
// unreachable hangs at startup; callers that need fail-fast behavior set
// this or cancel the context passed to Channel.
func WithMaxAttempts(attempts int) SupervisorOption {
	return func(s *ConnectionSupervisor) {
		s.maxAttempts = attempts
	}
}

// NewConnectionSupervisor creates a supervisor for the given broker URL.
// No connection is made until the first Channel call.
func NewConnectionSupervisor(url string, options ...SupervisorOption) *ConnectionSupervisor {
	s := &ConnectionSupervisor{
		url:         url,
		baseDelay:   time.Second,
		maxDelay:    time.Minute,
		maxAttempts: -1,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Channel returns the current healthy channel, dialing the broker and
// replaying topology if necessary. Safe to call concurrently; callers
// suspend until a channel is available, the context is cancelled, the
// attempt bound is exceeded, or the supervisor is closed.
func (s *ConnectionSupervisor) Channel(ctx context.Context) (*amqp.Channel, error) {
	ch, err := s.cached()
	if ch != nil || err != nil {
		return ch, err
	}

	// One caller rebuilds at a time; the rest queue here and pick up the
	// freshly installed channel on the re-check. The handle mutex stays
	// free during the dial and backoff so Close stays responsive.
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	ch, err = s.cached()
	if ch != nil || err != nil {
		return ch, err
	}
	return s.rebuild(ctx)
}

// DeclareTopology declares the topology now and registers it for replay on
// every future reconnect, so a connection or channel loss cannot lose
// declared broker state. A TopologyError is fatal and propagates.
func (s *ConnectionSupervisor) DeclareTopology(ctx context.Context, topology Topology) error {
	if err := topology.Validate(); err != nil {
		return err
	}

	ch, err := s.Channel(ctx)
	if err != nil {
		return err
	}
	if err := topology.Declare(ch); err != nil {
		return err
	}

	s.mu.Lock()
	s.topologies = append(s.topologies, topology)
	s.mu.Unlock()
	return nil
}

// Connected reports whether a live connection is currently held.
func (s *ConnectionSupervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && !s.conn.IsClosed()
}

// Close shuts the supervisor down. Consumers registered on the channel are
// cancelled; there is no other cancellation surface for them.
func (s *ConnectionSupervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	s.ch = nil
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// cached returns the installed channel if it is still live, or the
// shutdown error after Close. Both nil means the caller must rebuild.
func (s *ConnectionSupervisor) cached() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSupervisorClosed
	}
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	return nil, nil
}

// rebuild runs the dial/backoff loop with rebuildMu held. s.mu is taken
// only briefly inside establish, so a concurrent Close interrupts the
// backoff through s.done instead of waiting out the loop.
func (s *ConnectionSupervisor) rebuild(ctx context.Context) (*amqp.Channel, error) {
	for attempt := 0; ; attempt++ {
		if s.maxAttempts >= 0 && attempt >= s.maxAttempts {
			return nil, &ConnectionError{
				Op:       "reconnect",
				URL:      SanitizeURL(s.url),
				Err:      ErrMaxRetriesExceeded,
				Attempts: attempt,
			}
		}

		if attempt > 0 {
			delay := s.backoff(attempt - 1)
			s.logger.Info("retrying broker connection",
				"attempt", attempt+1,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.done:
				return nil, ErrSupervisorClosed
			}
		}

		ch, err := s.establish()
		if err != nil {
			if errors.Is(err, ErrSupervisorClosed) {
				return nil, err
			}
			// A declaration conflict is a deployment mismatch; retrying
			// a structural error cannot succeed.
			var topoErr *TopologyError
			if errors.As(err, &topoErr) {
				return nil, err
			}
			s.logger.Error("broker connection failed",
				"error", err,
				"attempt", attempt+1,
				"url", SanitizeURL(s.url),
			)
			continue
		}

		return ch, nil
	}
}

// establish dials if needed, opens a channel, and replays topology before
// the channel is visible to callers. Without the replay, a publisher or
// consumer racing the rebuild could target queues that do not exist yet.
// Runs with rebuildMu held; s.mu is taken only around handle access.
func (s *ConnectionSupervisor) establish() (*amqp.Channel, error) {
	conn, err := s.connection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, &ConnectionError{Op: "open channel", URL: SanitizeURL(s.url), Err: err}
	}

	s.mu.Lock()
	topologies := append([]Topology{}, s.topologies...)
	s.mu.Unlock()

	for _, topology := range topologies {
		if err := topology.Declare(ch); err != nil {
			ch.Close()
			return nil, err
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ch.Close()
		return nil, ErrSupervisorClosed
	}
	s.ch = ch
	s.mu.Unlock()

	go s.watchChannel(ch, ch.NotifyClose(make(chan *amqp.Error, 1)))
	return ch, nil
}

// connection returns the live connection, dialing outside the handle
// mutex when none is held.
func (s *ConnectionSupervisor) connection() (*amqp.Connection, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil && !conn.IsClosed() {
		return conn, nil
	}

	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", URL: SanitizeURL(s.url), Err: err}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil, ErrSupervisorClosed
	}
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("connected to broker", "url", SanitizeURL(s.url))
	go s.watchConnection(conn, conn.NotifyClose(make(chan *amqp.Error, 1)))
	return conn, nil
}

// watchConnection clears the cached handles when the broker closes the
// connection, so the next Channel call rebuilds everything.
func (s *ConnectionSupervisor) watchConnection(conn *amqp.Connection, closed <-chan *amqp.Error) {
	select {
	case err := <-closed:
		if err != nil {
			s.logger.Error("broker connection closed", "error", err)
		}
	case <-s.done:
		return
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.ch = nil
	}
	s.mu.Unlock()
}

// watchChannel clears the cached channel when the broker closes it while
// the connection stays up (e.g. after a channel-level error).
func (s *ConnectionSupervisor) watchChannel(ch *amqp.Channel, closed <-chan *amqp.Error) {
	select {
	case err := <-closed:
		if err != nil {
			s.logger.Warn("broker channel closed", "error", err)
		}
	case <-s.done:
		return
	}

	s.mu.Lock()
	if s.ch == ch {
		s.ch = nil
	}
	s.mu.Unlock()
}

// backoff computes exponential backoff with jitter, capped at maxDelay.
func (s *ConnectionSupervisor) backoff(attempt int) time.Duration {
	delay := s.baseDelay << uint(attempt)
	if delay <= 0 || delay > s.maxDelay {
		delay = s.maxDelay
	}

	// ±25% jitter so that a fleet of services does not reconnect in
	// lockstep after a broker restart.
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay - delay/4 + jitter
}
