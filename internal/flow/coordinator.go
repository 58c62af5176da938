package flow

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StaleAttemptTimeout is the age after which an in-flight attempt is
// considered abandoned and can be cleared.
const StaleAttemptTimeout = 10 * time.Minute

// ErrAttemptInProgress indicates a connection attempt is already in flight
// for the provider.
var ErrAttemptInProgress = errors.New("connection attempt already in progress")

// Coordinator serializes connection attempts per provider so that two
// concurrently-issued connect requests cannot both mint authorization URLs.
// It also owns the single-use state nonces for redirect callbacks.
type Coordinator struct {
	mu       sync.Mutex
	attempts map[string]*Attempt
	logger   *zap.Logger
}

// NewCoordinator creates an attempt coordinator.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	return &Coordinator{
		attempts: make(map[string]*Attempt),
		logger:   logger,
	}
}

// Begin starts a new attempt for the provider. If a non-stale attempt is
// already in flight, the existing attempt is returned with
// ErrAttemptInProgress. Stale attempts are cleared and replaced.
func (c *Coordinator) Begin(provider string) (*Attempt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.attempts[provider]; ok {
		if existing.Age() <= StaleAttemptTimeout {
			c.logger.Info("Connection attempt already in flight",
				zap.String("provider", provider),
				zap.String("attempt_id", existing.ID),
				zap.String("state", existing.State.String()))
			return existing, ErrAttemptInProgress
		}
		c.logger.Warn("Clearing stale connection attempt",
			zap.String("provider", provider),
			zap.String("attempt_id", existing.ID),
			zap.Duration("age", existing.Age()))
		delete(c.attempts, provider)
	}

	attempt := newAttempt(provider)
	c.attempts[provider] = attempt

	c.logger.Info("Started connection attempt",
		zap.String("provider", provider),
		zap.String("attempt_id", attempt.ID))
	return attempt, nil
}

// Get returns the in-flight attempt for a provider, or nil.
func (c *Coordinator) Get(provider string) *Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[provider]
}

// Transition moves the provider's in-flight attempt to the given state.
// Terminal states remove the attempt.
func (c *Coordinator) Transition(provider string, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempt, ok := c.attempts[provider]
	if !ok {
		return
	}
	attempt.State = state
	c.logger.Debug("Attempt state changed",
		zap.String("provider", provider),
		zap.String("attempt_id", attempt.ID),
		zap.String("state", state.String()))

	if state.Terminal() {
		delete(c.attempts, provider)
	}
}

// ConsumeNonce validates a callback's state value against the provider's
// in-flight attempt. The nonce is single-use: a matching value clears it, so
// a replayed callback fails. Mismatches report only failure, never which
// half mismatched.
func (c *Coordinator) ConsumeNonce(provider, state string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempt, ok := c.attempts[provider]
	if !ok || state == "" || attempt.Nonce == "" || attempt.Nonce != state {
		return false
	}
	attempt.Nonce = ""
	return true
}

// CleanupStale removes attempts older than StaleAttemptTimeout. Returns the
// number of attempts cleared.
func (c *Coordinator) CleanupStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	for provider, attempt := range c.attempts {
		if attempt.Age() > StaleAttemptTimeout {
			c.logger.Warn("Cleaning up stale connection attempt",
				zap.String("provider", provider),
				zap.String("attempt_id", attempt.ID),
				zap.Duration("age", attempt.Age()))
			delete(c.attempts, provider)
			cleaned++
		}
	}
	return cleaned
}
