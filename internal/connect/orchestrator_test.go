package connect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"integrator-go/internal/accounts"
	"integrator-go/internal/catalog"
	"integrator-go/internal/flow"
	"integrator-go/internal/manifest"
	"integrator-go/internal/provider"
	"integrator-go/internal/secret"
)

// stubStrategy scripts strategy behavior per test.
type stubStrategy struct {
	name       string
	connected  bool
	checkErr   error
	start      *provider.StartResult
	startErr   error
	complete   *provider.CompleteResult
	startCalls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) CheckConnected(context.Context) (bool, error) {
	return s.connected, s.checkErr
}

func (s *stubStrategy) StartFlow(context.Context, string) (*provider.StartResult, error) {
	s.startCalls++
	return s.start, s.startErr
}

func (s *stubStrategy) Disconnect(context.Context) error {
	s.connected = false
	return nil
}

func (s *stubStrategy) CompleteFlow(context.Context) (*provider.CompleteResult, error) {
	return s.complete, nil
}

func newOrchestrator(t *testing.T, secrets secret.Store, strategies ...provider.Strategy) (*Orchestrator, *provider.Registry) {
	t.Helper()

	manifests := []*manifest.IntegrationManifest{
		{Name: "github", Title: "GitHub", RequiredSecrets: []manifest.RequiredSecret{
			{Name: "github_client_id"}, {Name: "github_client_secret"},
		}},
		{Name: "jira", Title: "Jira", AuthMethods: []manifest.AuthMethod{
			{ID: "oauth", RequiredFields: []string{"jira_client_id", "jira_client_secret"}},
			{ID: "api_token", RequiredFields: []string{"jira_host", "jira_email", "jira_api_token"}},
		}},
		{Name: "atlassian", Title: "Atlassian"},
	}

	registry := provider.NewRegistry(zap.NewNop())
	for _, s := range strategies {
		registry.Register(s)
	}

	checker := catalog.NewChecker(secrets)
	cat := catalog.NewService(manifests, checker, registry, zap.NewNop())
	return NewOrchestrator(cat, checker, registry, secrets, nil, zap.NewNop()), registry
}

func githubSecrets(t *testing.T) secret.Store {
	t.Helper()
	store := secret.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "github_client_id", "id", "github"))
	require.NoError(t, store.Set(context.Background(), "github_client_secret", "secret", "github"))
	return store
}

func TestOrchestrator_ConnectUnknownIntegration(t *testing.T) {
	o, _ := newOrchestrator(t, secret.NewMemoryStore())

	_, err := o.Connect(context.Background(), "slack", "")
	assert.ErrorIs(t, err, catalog.ErrUnknownIntegration)
}

func TestOrchestrator_ConnectAlreadyConnectedIsIdempotent(t *testing.T) {
	stub := &stubStrategy{name: "github", connected: true,
		start: &provider.StartResult{AuthURL: "https://example.com/should-not-appear"}}
	o, _ := newOrchestrator(t, githubSecrets(t), stub)

	result, err := o.Connect(context.Background(), "github", "")
	require.NoError(t, err)

	assert.True(t, result.Connected)
	assert.Contains(t, result.Message, "GitHub")
	// No new authorization URL is ever minted for a connected provider.
	assert.Empty(t, result.AuthURL)
	assert.Zero(t, stub.startCalls)
}

func TestOrchestrator_ConnectCredentialsMissing(t *testing.T) {
	stub := &stubStrategy{name: "github"}
	o, _ := newOrchestrator(t, secret.NewMemoryStore(), stub)

	_, err := o.Connect(context.Background(), "github", "")
	var cerr *CredentialsMissingError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"github_client_id", "github_client_secret"}, cerr.RequiredSecrets)
	assert.Zero(t, stub.startCalls)
}

func TestOrchestrator_ConnectDispatchesToStrategy(t *testing.T) {
	stub := &stubStrategy{name: "github",
		start: &provider.StartResult{AuthURL: "https://github.com/authorize?state=x", OAuthState: "x"}}
	o, _ := newOrchestrator(t, githubSecrets(t), stub)

	result, err := o.Connect(context.Background(), "github", "")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/authorize?state=x", result.AuthURL)
	assert.Equal(t, 1, stub.startCalls)
}

func TestOrchestrator_ConnectStatusCheckFailureDoesNotBlockFlow(t *testing.T) {
	stub := &stubStrategy{name: "github",
		checkErr: errors.New("account store unreachable"),
		start:    &provider.StartResult{AuthURL: "https://github.com/authorize"}}
	o, _ := newOrchestrator(t, githubSecrets(t), stub)

	result, err := o.Connect(context.Background(), "github", "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AuthURL)
}

// resolvedAccounts backs the real Jira strategy in the tests below.
type resolvedAccounts struct {
	list []accounts.Account
}

func (a *resolvedAccounts) ListAccounts(string) ([]accounts.Account, error) { return a.list, nil }
func (a *resolvedAccounts) AddAccount(accounts.Account) error               { return nil }
func (a *resolvedAccounts) RemoveAccounts(string) error                     { return nil }

// newJiraStrategy builds the real composite strategy, not a stub, so the
// connect path is exercised end to end.
func newJiraStrategy(secrets secret.Store) *provider.JiraStrategy {
	logger := zap.NewNop()
	m := &manifest.IntegrationManifest{Name: "jira", Title: "Jira",
		OAuth: &manifest.OAuthConfig{
			AuthorizationURL: "https://auth.atlassian.com/authorize",
			TokenURL:         "https://auth.atlassian.com/oauth/token",
		}}
	oauth := provider.NewRedirectStrategy(m, secrets, &resolvedAccounts{},
		flow.NewCoordinator(logger), "http://127.0.0.1:8090", nil, logger)
	return provider.NewJiraStrategy(oauth, secrets, nil, logger)
}

func jiraSecrets(t *testing.T, host string) secret.Store {
	t.Helper()
	ctx := context.Background()
	store := secret.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "jira_host", host, "jira"))
	require.NoError(t, store.Set(ctx, "jira_email", "dev@example.com", "jira"))
	require.NoError(t, store.Set(ctx, "jira_api_token", "token-1", "jira"))
	return store
}

func TestOrchestrator_ConnectJiraAPITokenVerifiesLive(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/rest/api/2/myself", r.URL.Path)
		email, token, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "dev@example.com", email)
		assert.Equal(t, "token-1", token)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"displayName":"Dana Developer"}`))
	}))
	defer srv.Close()

	store := jiraSecrets(t, srv.URL)
	o, _ := newOrchestrator(t, store, newJiraStrategy(store))

	result, err := o.Connect(context.Background(), "jira", "api_token")
	require.NoError(t, err)
	assert.True(t, result.Connected)
	assert.Contains(t, result.Message, srv.URL)
	assert.Contains(t, result.Message, "Dana Developer")
	// Credential presence alone must not short-circuit an explicit
	// api_token connect; the host has to be consulted.
	assert.Equal(t, int64(1), hits.Load())
}

func TestOrchestrator_ConnectJiraAPITokenInvalidToken(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Invalid API token"))
	}))
	defer srv.Close()

	store := jiraSecrets(t, srv.URL)
	o, _ := newOrchestrator(t, store, newJiraStrategy(store))

	_, err := o.Connect(context.Background(), "jira", "api_token")
	var verr *provider.VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Invalid API token", verr.Message)
	assert.Equal(t, int64(1), hits.Load())
}

func TestOrchestrator_ConnectJiraAPITokenMissingCredentials(t *testing.T) {
	store := secret.NewMemoryStore()
	o, _ := newOrchestrator(t, store, newJiraStrategy(store))

	_, err := o.Connect(context.Background(), "jira", "api_token")
	var cerr *CredentialsMissingError
	require.ErrorAs(t, err, &cerr)
	assert.ElementsMatch(t,
		[]string{"jira_host", "jira_email", "jira_api_token"}, cerr.RequiredSecrets)
}

func TestOrchestrator_SaveCredentials(t *testing.T) {
	ctx := context.Background()
	store := secret.NewMemoryStore()
	o, _ := newOrchestrator(t, store, &stubStrategy{name: "jira"})

	result, err := o.SaveCredentials(ctx, "jira", map[string]interface{}{
		"jira_host":      "example.atlassian.net",
		"jira_email":     "dev@example.com",
		"jira_api_token": "tok",
		"jira_port":      8080,       // non-string: skipped, not rejected
		"jira_extra":     []string{}, // likewise
	}, "api_token")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.SecretsConfigured)

	value, err := store.Get(ctx, "jira_host")
	require.NoError(t, err)
	assert.Equal(t, "example.atlassian.net", value)
	_, err = store.Get(ctx, "jira_port")
	assert.ErrorIs(t, err, secret.ErrNotFound)
}

func TestOrchestrator_SaveCredentialsPartial(t *testing.T) {
	o, _ := newOrchestrator(t, secret.NewMemoryStore(), &stubStrategy{name: "jira"})

	result, err := o.SaveCredentials(context.Background(), "jira", map[string]interface{}{
		"jira_host": "example.atlassian.net",
	}, "api_token")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.SecretsConfigured)
}

func TestOrchestrator_Complete(t *testing.T) {
	stub := &stubStrategy{name: "atlassian", complete: &provider.CompleteResult{Connected: true}}
	o, _ := newOrchestrator(t, secret.NewMemoryStore(), stub)

	result, err := o.Complete(context.Background(), "atlassian")
	require.NoError(t, err)
	assert.True(t, result.Connected)
}

func TestOrchestrator_CompleteWithoutProbe(t *testing.T) {
	// stubStrategy implements Completer, so use a registry without the
	// provider at all to exercise the unavailable path instead.
	o, _ := newOrchestrator(t, secret.NewMemoryStore())

	_, err := o.Complete(context.Background(), "atlassian")
	assert.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestOrchestrator_Disconnect(t *testing.T) {
	stub := &stubStrategy{name: "github", connected: true}
	o, _ := newOrchestrator(t, githubSecrets(t), stub)

	require.NoError(t, o.Disconnect(context.Background(), "github"))
	assert.False(t, stub.connected)

	assert.ErrorIs(t, o.Disconnect(context.Background(), "slack"), catalog.ErrUnknownIntegration)
}
