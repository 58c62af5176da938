// Package provider implements per-provider connection strategies. Each
// strategy covers one provider class (redirect OAuth, host-mediated OAuth, or
// API token) and implements only the operations relevant to that class. The
// dispatcher talks to strategies exclusively through the Registry.
package provider

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"integrator-go/internal/accounts"
)

// ErrUnavailable indicates no strategy is registered for a provider.
var ErrUnavailable = errors.New("provider strategy unavailable")

// VerificationError carries a provider's own failure text from a synchronous
// credential verification.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	return e.Message
}

// StartResult is the dispatcher's answer to a connect request. Exactly one
// of the three shapes is populated: an immediate terminal result, a redirect
// authorization URL, or an out-of-band instruction.
type StartResult struct {
	Connected bool   `json:"connected,omitempty"`
	Message   string `json:"message,omitempty"`

	AuthURL      string `json:"authUrl,omitempty"`
	OAuthState   string `json:"oauthState,omitempty"`
	CallbackURL  string `json:"callbackUrl,omitempty"`
	Instructions string `json:"instructions,omitempty"`

	RequiresOpenCode bool   `json:"requiresOpenCode,omitempty"`
	OpenCodeURL      string `json:"openCodeUrl,omitempty"`
}

// Terminal reports whether the result already ended the attempt.
func (r *StartResult) Terminal() bool {
	return r.Connected
}

// CompleteResult is one completion-probe response. Empty means the attempt
// is still pending.
type CompleteResult struct {
	Connected bool   `json:"connected,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Pending reports whether the probe saw no terminal state yet.
func (r *CompleteResult) Pending() bool {
	return !r.Connected && r.Error == ""
}

// Strategy is the per-provider connection behavior.
type Strategy interface {
	// Name returns the provider id the strategy serves.
	Name() string

	// CheckConnected reports whether the provider has a live connection.
	CheckConnected(ctx context.Context) (bool, error)

	// StartFlow begins (or resumes) a connection attempt.
	StartFlow(ctx context.Context, authMethod string) (*StartResult, error)

	// Disconnect tears down whatever the strategy considers connection
	// evidence.
	Disconnect(ctx context.Context) error
}

// Completer is implemented by strategies whose flows finish out of band and
// are observed through a completion probe.
type Completer interface {
	CompleteFlow(ctx context.Context) (*CompleteResult, error)
}

// ConnectVerifier is implemented by strategies whose StartFlow performs a
// synchronous credential verification for some auth methods. For those
// methods CheckConnected is only a presence approximation, so the
// dispatcher must not short-circuit on it and has to run the flow.
type ConnectVerifier interface {
	VerifiesOnConnect(authMethod string) bool
}

// CodeExchanger is implemented by redirect-class strategies. The callback
// receiver uses it to finish the flow after state validation.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Identity(ctx context.Context, token *oauth2.Token) (accounts.Account, error)
	SaveAccount(a accounts.Account) error
}

// Registry holds the strategies keyed by provider id. It is built once at
// startup and injected wherever provider dispatch is needed; there are no
// module-level singletons.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewRegistry creates an empty strategy registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		logger:     logger,
	}
}

// Register adds a strategy under its provider id.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy for a provider id.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Names returns the registered provider ids.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// IsConnected resolves a provider's connection status. Providers without a
// registered strategy are simply never connected.
func (r *Registry) IsConnected(ctx context.Context, name string) (bool, error) {
	s, ok := r.Get(name)
	if !ok {
		return false, nil
	}
	return s.CheckConnected(ctx)
}
