// Package poller drives the client side of an authorization to completion.
// Redirect-class flows wait for the callback notification; host-mediated
// flows poll the completion probe on a bounded schedule.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"integrator-go/internal/provider"
)

const (
	// DefaultInterval is the completion-probe period.
	DefaultInterval = 2 * time.Second
	// DefaultMaxAttempts bounds the probe loop: 60 probes at 2s is a
	// 2-minute ceiling.
	DefaultMaxAttempts = 60
)

// ErrAuthorizationTimeout indicates the probe ceiling was exhausted with no
// terminal result.
var ErrAuthorizationTimeout = errors.New("authorization timed out; no completion observed")

// ErrWindowClosed indicates the authorization window closed before a
// terminal result and the final probe still saw nothing.
var ErrWindowClosed = errors.New("authorization window was closed before completion")

// ErrSessionClosed indicates the session was torn down while waiting.
var ErrSessionClosed = errors.New("authorization session closed")

// Probe asks the completion endpoint for the flow's current state.
type Probe func(ctx context.Context) (*provider.CompleteResult, error)

// Session is one out-of-band authorization in flight. A session either
// supports a direct callback (the popup posts completion to its opener) or
// requires polling; the capability decides which wait path runs. Sessions
// must be closed when the surface driving them is torn down, or their timer
// leaks.
type Session struct {
	provider        string
	requiresPolling bool

	probe        Probe
	interval     time.Duration
	maxAttempts  int
	windowClosed func() bool

	callbackDone chan bool

	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Option customizes a session.
type Option func(*Session)

// WithInterval overrides the probe period.
func WithInterval(d time.Duration) Option {
	return func(s *Session) { s.interval = d }
}

// WithMaxAttempts overrides the probe ceiling.
func WithMaxAttempts(n int) Option {
	return func(s *Session) { s.maxAttempts = n }
}

// WithWindowClosedCheck installs a detector for the authorization window
// having been closed by the user.
func WithWindowClosedCheck(f func() bool) Option {
	return func(s *Session) { s.windowClosed = f }
}

// NewPollingSession creates a session for a host-mediated flow observed
// through a completion probe.
func NewPollingSession(providerName string, probe Probe, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		provider:        providerName,
		requiresPolling: true,
		probe:           probe,
		interval:        DefaultInterval,
		maxAttempts:     DefaultMaxAttempts,
		logger:          logger,
		closed:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewCallbackSession creates a session for a redirect flow that completes
// through the callback receiver. NotifyComplete delivers the outcome.
func NewCallbackSession(providerName string, logger *zap.Logger) *Session {
	return &Session{
		provider:     providerName,
		callbackDone: make(chan bool, 1),
		logger:       logger,
		closed:       make(chan struct{}),
	}
}

// RequiresPolling reports which wait path the session uses.
func (s *Session) RequiresPolling() bool { return s.requiresPolling }

// NotifyComplete delivers a callback outcome to a callback session. It is a
// no-op for polling sessions.
func (s *Session) NotifyComplete(success bool) {
	if s.callbackDone == nil {
		return
	}
	select {
	case s.callbackDone <- success:
	default:
	}
}

// Close tears the session down. Waiters unblock with ErrSessionClosed.
// Closing is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Wait blocks until the authorization reaches a terminal state, the ceiling
// is exhausted, or the session is cancelled. It returns nil on success and a
// terminal error otherwise; provider error text is surfaced verbatim.
func (s *Session) Wait(ctx context.Context) error {
	if s.requiresPolling {
		return s.waitPolling(ctx)
	}
	return s.waitCallback(ctx)
}

func (s *Session) waitCallback(ctx context.Context) error {
	select {
	case success := <-s.callbackDone:
		if !success {
			return errors.New("authorization failed")
		}
		return nil
	case <-s.closed:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) waitPolling(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-s.closed:
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if s.windowClosed != nil && s.windowClosed() {
			// The user may have completed authorization just as they closed
			// the window: one final probe before giving up.
			s.logger.Debug("Authorization window closed, probing once more",
				zap.String("provider", s.provider))
			if done, err := s.probeOnce(ctx); done {
				return err
			}
			return ErrWindowClosed
		}

		attempts++
		if done, err := s.probeOnce(ctx); done {
			return err
		}
		if attempts >= s.maxAttempts {
			s.logger.Warn("Completion probe ceiling exhausted",
				zap.String("provider", s.provider),
				zap.Int("attempts", attempts))
			return ErrAuthorizationTimeout
		}
	}
}

// probeOnce runs a single probe. done is true when the result is terminal;
// err is nil for success and carries the failure otherwise. A transport
// error is not terminal: the probe endpoint may recover within the ceiling.
func (s *Session) probeOnce(ctx context.Context) (bool, error) {
	result, err := s.probe(ctx)
	if err != nil {
		s.logger.Debug("Completion probe failed, will retry",
			zap.String("provider", s.provider),
			zap.Error(err))
		return false, nil
	}
	if result.Connected {
		return true, nil
	}
	if result.Error != "" {
		return true, errors.New(result.Error)
	}
	return false, nil
}
