// Package flow tracks in-flight connection attempts: their state machine,
// the per-provider in-flight guard, and single-use state nonces for redirect
// callbacks.
package flow

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// State is the lifecycle state of a connection attempt.
type State int

const (
	// StateDisconnected is the initial state before any attempt.
	StateDisconnected State = iota
	// StateRequesting indicates the dispatcher is resolving the flow.
	StateRequesting
	// StateAwaitingCallback indicates a redirect authorization URL was issued
	// and the callback has not arrived yet.
	StateAwaitingCallback
	// StateAwaitingHostMediated indicates an out-of-band flow was started and
	// only the completion probe can observe its outcome.
	StateAwaitingHostMediated
	// StateConnected is the terminal success state.
	StateConnected
	// StateFailed is the terminal failure state.
	StateFailed
	// StateTimedOut indicates the attempt exceeded its polling ceiling.
	StateTimedOut
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateRequesting:
		return "requesting"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateAwaitingHostMediated:
		return "awaiting_host_mediated"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends an attempt.
func (s State) Terminal() bool {
	return s == StateConnected || s == StateFailed || s == StateTimedOut
}

// Attempt is one ephemeral connection attempt. Attempts live only in memory;
// a process restart loses them by design.
type Attempt struct {
	// ID uniquely identifies the attempt.
	ID string
	// Provider is the integration being connected.
	Provider string
	// State is the current lifecycle state.
	State State
	// Nonce is the single-use OAuth state value, empty once consumed.
	Nonce string
	// AuthURL is the issued authorization URL, if any.
	AuthURL string
	// StartTime is when the attempt was created.
	StartTime time.Time
}

// Age returns the time elapsed since the attempt started.
func (a *Attempt) Age() time.Duration {
	return time.Since(a.StartTime)
}

func newAttempt(provider string) *Attempt {
	return &Attempt{
		ID:        ulid.Make().String(),
		Provider:  provider,
		State:     StateRequesting,
		Nonce:     uuid.New().String(),
		StartTime: time.Now(),
	}
}
