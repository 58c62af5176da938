package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"integrator-go/internal/accounts"
	"integrator-go/internal/flow"
)

// TokenSource exposes the token set a host-mediated broker writes on the
// provider's behalf. This backend never observes the broker's flow directly;
// it only re-reads the token source through the completion probe.
type TokenSource interface {
	Tokens(ctx context.Context) (*accounts.TokenRecord, error)
	DeleteTokens(ctx context.Context) error
}

// StoreTokenSource reads token records from the account store.
type StoreTokenSource struct {
	store    *accounts.Store
	provider string
}

// NewStoreTokenSource creates a token source over the account store.
func NewStoreTokenSource(store *accounts.Store, provider string) *StoreTokenSource {
	return &StoreTokenSource{store: store, provider: provider}
}

func (s *StoreTokenSource) Tokens(_ context.Context) (*accounts.TokenRecord, error) {
	return s.store.GetToken(s.provider)
}

func (s *StoreTokenSource) DeleteTokens(_ context.Context) error {
	return s.store.DeleteToken(s.provider)
}

// HostMediatedStrategy handles providers whose OAuth flow is brokered by a
// hosted process this backend does not control (Atlassian). Success can only
// be observed by polling CompleteFlow.
type HostMediatedStrategy struct {
	name        string
	title       string
	tokens      TokenSource
	openCodeURL string
	flows       *flow.Coordinator
	logger      *zap.Logger
}

// NewHostMediatedStrategy creates a host-mediated strategy.
func NewHostMediatedStrategy(name, title string, tokens TokenSource, openCodeURL string, flows *flow.Coordinator, logger *zap.Logger) *HostMediatedStrategy {
	return &HostMediatedStrategy{
		name:        name,
		title:       title,
		tokens:      tokens,
		openCodeURL: openCodeURL,
		flows:       flows,
		logger:      logger,
	}
}

func (s *HostMediatedStrategy) Name() string { return s.name }

// CheckConnected reports connected iff the broker has written a token record
// with an access token. Expiry is the broker's concern, not checked here.
func (s *HostMediatedStrategy) CheckConnected(ctx context.Context) (bool, error) {
	rec, err := s.tokens.Tokens(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read %s tokens: %w", s.name, err)
	}
	return rec != nil && rec.AccessToken != "", nil
}

// StartFlow returns the out-of-band instruction. The caller opens the hosted
// authorization page and then polls the completion probe.
func (s *HostMediatedStrategy) StartFlow(_ context.Context, _ string) (*StartResult, error) {
	if _, err := s.flows.Begin(s.name); err != nil && !errors.Is(err, flow.ErrAttemptInProgress) {
		return nil, err
	}
	s.flows.Transition(s.name, flow.StateAwaitingHostMediated)

	return &StartResult{
		RequiresOpenCode: true,
		OpenCodeURL:      s.openCodeURL,
		Instructions: fmt.Sprintf(
			"Authorization for %s is handled by a hosted sign-in page. Open the URL, complete the sign-in, and keep this window open; the connection is detected automatically.",
			s.title),
	}, nil
}

// CompleteFlow is the completion probe: terminal success once the broker has
// written an access token, pending otherwise.
func (s *HostMediatedStrategy) CompleteFlow(ctx context.Context) (*CompleteResult, error) {
	rec, err := s.tokens.Tokens(ctx)
	if err != nil {
		s.flows.Transition(s.name, flow.StateFailed)
		return &CompleteResult{Error: err.Error()}, nil
	}
	if rec != nil && rec.AccessToken != "" {
		s.flows.Transition(s.name, flow.StateConnected)
		s.logger.Info("Host-mediated authorization completed", zap.String("provider", s.name))
		return &CompleteResult{Connected: true}, nil
	}
	return &CompleteResult{}, nil
}

// Disconnect drops the stored token record.
func (s *HostMediatedStrategy) Disconnect(ctx context.Context) error {
	return s.tokens.DeleteTokens(ctx)
}
