package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"integrator-go/internal/accounts"
	"integrator-go/internal/flow"
	"integrator-go/internal/manifest"
	"integrator-go/internal/secret"
)

// AccountStore is the slice of the account store a redirect strategy needs.
type AccountStore interface {
	ListAccounts(provider string) ([]accounts.Account, error)
	AddAccount(a accounts.Account) error
	RemoveAccounts(provider string) error
}

// IdentityFunc fetches the authenticated account's identity using an HTTP
// client that already carries the provider token.
type IdentityFunc func(ctx context.Context, client *http.Client) (accounts.Account, error)

// RedirectStrategy handles providers whose OAuth callback this backend can
// intercept directly (Google, GitHub, Linear, Jira OAuth mode).
type RedirectStrategy struct {
	name            string
	manifest        *manifest.IntegrationManifest
	secrets         secret.Store
	accounts        AccountStore
	flows           *flow.Coordinator
	callbackBase    string
	clientIDKey     string
	clientSecretKey string
	authCodeOpts    []oauth2.AuthCodeOption
	identity        IdentityFunc
	logger          *zap.Logger
}

// RedirectOption customizes a redirect strategy.
type RedirectOption func(*RedirectStrategy)

// WithAuthCodeOptions adds provider-specific authorization URL parameters
// (Google's access_type=offline, for example).
func WithAuthCodeOptions(opts ...oauth2.AuthCodeOption) RedirectOption {
	return func(s *RedirectStrategy) {
		s.authCodeOpts = append(s.authCodeOpts, opts...)
	}
}

// WithCredentialKeys overrides the secret keys holding the OAuth client id
// and secret. Defaults are <name>_client_id and <name>_client_secret.
func WithCredentialKeys(clientIDKey, clientSecretKey string) RedirectOption {
	return func(s *RedirectStrategy) {
		s.clientIDKey = clientIDKey
		s.clientSecretKey = clientSecretKey
	}
}

// NewRedirectStrategy creates a redirect-class strategy for a manifest with
// an OAuth configuration.
func NewRedirectStrategy(m *manifest.IntegrationManifest, secrets secret.Store, store AccountStore, flows *flow.Coordinator, callbackBase string, identity IdentityFunc, logger *zap.Logger, opts ...RedirectOption) *RedirectStrategy {
	s := &RedirectStrategy{
		name:            m.Name,
		manifest:        m,
		secrets:         secrets,
		accounts:        store,
		flows:           flows,
		callbackBase:    callbackBase,
		clientIDKey:     m.Name + "_client_id",
		clientSecretKey: m.Name + "_client_secret",
		identity:        identity,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedirectStrategy) Name() string { return s.name }

// CheckConnected reports connected iff the provider has at least one stored
// account.
func (s *RedirectStrategy) CheckConnected(_ context.Context) (bool, error) {
	list, err := s.accounts.ListAccounts(s.name)
	if err != nil {
		return false, fmt.Errorf("failed to list %s accounts: %w", s.name, err)
	}
	return len(list) > 0, nil
}

// StartFlow mints a single-use state nonce and an authorization URL. A
// connect racing with an outstanding attempt gets the already-issued URL
// back instead of a second one.
func (s *RedirectStrategy) StartFlow(ctx context.Context, _ string) (*StartResult, error) {
	cfg, err := s.oauthConfig(ctx)
	if err != nil {
		return nil, err
	}

	attempt, err := s.flows.Begin(s.name)
	if err != nil {
		if errors.Is(err, flow.ErrAttemptInProgress) && attempt.AuthURL != "" {
			return s.startResult(attempt.AuthURL, attempt.Nonce), nil
		}
		return nil, err
	}

	attempt.AuthURL = cfg.AuthCodeURL(attempt.Nonce, s.authCodeOpts...)
	s.flows.Transition(s.name, flow.StateAwaitingCallback)

	s.logger.Info("Issued authorization URL",
		zap.String("provider", s.name),
		zap.String("attempt_id", attempt.ID))
	return s.startResult(attempt.AuthURL, attempt.Nonce), nil
}

// Disconnect removes all stored accounts for the provider.
func (s *RedirectStrategy) Disconnect(_ context.Context) error {
	return s.accounts.RemoveAccounts(s.name)
}

// Exchange trades an authorization code for a token.
func (s *RedirectStrategy) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	cfg, err := s.oauthConfig(ctx)
	if err != nil {
		return nil, err
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed for %s: %w", s.name, err)
	}
	return token, nil
}

// Identity fetches the connected account's identity with the freshly-issued
// token.
func (s *RedirectStrategy) Identity(ctx context.Context, token *oauth2.Token) (accounts.Account, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	account, err := s.identity(ctx, client)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("failed to fetch %s identity: %w", s.name, err)
	}
	account.Provider = s.name
	return account, nil
}

// SaveAccount persists a connected account after a successful callback.
func (s *RedirectStrategy) SaveAccount(a accounts.Account) error {
	a.Provider = s.name
	return s.accounts.AddAccount(a)
}

// CallbackURL returns where the provider should redirect after
// authorization.
func (s *RedirectStrategy) CallbackURL() string {
	return fmt.Sprintf("%s/oauth/%s/callback", s.callbackBase, s.name)
}

func (s *RedirectStrategy) oauthConfig(ctx context.Context) (*oauth2.Config, error) {
	if s.manifest.OAuth == nil {
		return nil, fmt.Errorf("manifest for %s has no oauth configuration", s.name)
	}

	clientID, err := s.secrets.Get(ctx, s.clientIDKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.clientIDKey, err)
	}
	clientSecret, err := s.secrets.Get(ctx, s.clientSecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.clientSecretKey, err)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  s.manifest.OAuth.AuthorizationURL,
			TokenURL: s.manifest.OAuth.TokenURL,
		},
		RedirectURL: s.CallbackURL(),
		Scopes:      s.manifest.OAuth.Scopes,
	}, nil
}

func (s *RedirectStrategy) startResult(authURL, state string) *StartResult {
	return &StartResult{
		AuthURL:     authURL,
		OAuthState:  state,
		CallbackURL: s.CallbackURL(),
		Instructions: fmt.Sprintf(
			"Open the authorization URL in a browser and approve access for %s. The flow completes automatically once the provider redirects back.",
			s.manifest.Title),
	}
}
