package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"integrator-go/internal/catalog"
	"integrator-go/internal/connect"
	"integrator-go/internal/manifest"
	"integrator-go/internal/observability"
	"integrator-go/internal/provider"
	"integrator-go/internal/secret"
)

type stubStrategy struct {
	name      string
	connected bool
	start     *provider.StartResult
	startErr  error
	complete  *provider.CompleteResult
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) CheckConnected(ctx context.Context) (bool, error) {
	return s.connected, nil
}

func (s *stubStrategy) StartFlow(ctx context.Context, authMethod string) (*provider.StartResult, error) {
	return s.start, s.startErr
}

func (s *stubStrategy) Disconnect(ctx context.Context) error {
	s.connected = false
	return nil
}

func (s *stubStrategy) CompleteFlow(ctx context.Context) (*provider.CompleteResult, error) {
	return s.complete, nil
}

func testManifest(name string, keys ...string) *manifest.IntegrationManifest {
	m := &manifest.IntegrationManifest{Name: name, Title: name}
	for _, key := range keys {
		m.RequiredSecrets = append(m.RequiredSecrets, manifest.RequiredSecret{Name: key})
	}
	return m
}

func newTestServer(t *testing.T, manifests []*manifest.IntegrationManifest, strategies ...provider.Strategy) (*Server, secret.Store) {
	t.Helper()

	logger := zap.NewNop()
	secrets := secret.NewMemoryStore()
	checker := catalog.NewChecker(secrets)

	registry := provider.NewRegistry(logger)
	for _, s := range strategies {
		registry.Register(s)
	}

	cat := catalog.NewService(manifests, checker, registry, logger)
	orch := connect.NewOrchestrator(cat, checker, registry, secrets, observability.NewMetrics(), logger)

	return NewServer(cat, orch, nil, observability.NewMetrics(), logger), secrets
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var resp APIResponse
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestCatalogListsAllIntegrations(t *testing.T) {
	manifests := []*manifest.IntegrationManifest{
		testManifest("github", "github_client_id", "github_client_secret"),
		testManifest("linear", "linear_client_id", "linear_client_secret"),
	}
	srv, _ := newTestServer(t, manifests,
		&stubStrategy{name: "github", connected: true},
		&stubStrategy{name: "linear"})

	rec, resp := doJSON(t, srv, http.MethodGet, "/integrations/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	entries, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, entries, 2)
}

func TestCatalogEntryNotFound(t *testing.T) {
	srv, _ := newTestServer(t, []*manifest.IntegrationManifest{testManifest("github")})

	rec, resp := doJSON(t, srv, http.MethodGet, "/integrations/catalog/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestCatalogEntryStatus(t *testing.T) {
	srv, secrets := newTestServer(t,
		[]*manifest.IntegrationManifest{testManifest("github", "github_client_id")},
		&stubStrategy{name: "github", connected: true})

	require.NoError(t, secrets.Set(context.Background(), "github_client_id", "id", "github"))

	rec, resp := doJSON(t, srv, http.MethodGet, "/integrations/catalog/github", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entry, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, entry["secretsConfigured"])
	assert.Equal(t, true, entry["isConnected"])
}

func TestConnectReturnsAuthURL(t *testing.T) {
	srv, secrets := newTestServer(t,
		[]*manifest.IntegrationManifest{testManifest("github", "github_client_id")},
		&stubStrategy{name: "github", start: &provider.StartResult{
			AuthURL:    "https://github.com/login/oauth/authorize?state=abc",
			OAuthState: "abc",
		}})

	require.NoError(t, secrets.Set(context.Background(), "github_client_id", "id", "github"))

	rec, resp := doJSON(t, srv, http.MethodPost, "/integrations/connect/github", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, data["authUrl"], "github.com")
}

func TestConnectMissingCredentials(t *testing.T) {
	srv, _ := newTestServer(t,
		[]*manifest.IntegrationManifest{testManifest("github", "github_client_id", "github_client_secret")},
		&stubStrategy{name: "github"})

	rec, resp := doJSON(t, srv, http.MethodPost, "/integrations/connect/github", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["credentialsMissing"])
	assert.ElementsMatch(t,
		[]interface{}{"github_client_id", "github_client_secret"},
		data["requiredSecrets"])
}

func TestConnectUnknownIntegration(t *testing.T) {
	srv, _ := newTestServer(t, []*manifest.IntegrationManifest{testManifest("github")})

	rec, _ := doJSON(t, srv, http.MethodPost, "/integrations/connect/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveCredentials(t *testing.T) {
	srv, secrets := newTestServer(t,
		[]*manifest.IntegrationManifest{testManifest("jira", "jira_host", "jira_email")},
		&stubStrategy{name: "jira"})

	body := map[string]interface{}{
		"credentials": map[string]interface{}{
			"jira_host":  "https://example.atlassian.net",
			"jira_email": "dev@example.com",
		},
	}
	rec, resp := doJSON(t, srv, http.MethodPost, "/integrations/connect/jira/credentials", body)
	require.Equal(t, http.StatusOK, rec.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["secretsConfigured"])

	host, err := secrets.Get(context.Background(), "jira_host")
	require.NoError(t, err)
	assert.Equal(t, "https://example.atlassian.net", host)
}

func TestSaveCredentialsRejectsMissingObject(t *testing.T) {
	srv, _ := newTestServer(t, []*manifest.IntegrationManifest{testManifest("jira")})

	rec, _ := doJSON(t, srv, http.MethodPost, "/integrations/connect/jira/credentials",
		map[string]interface{}{"authMethod": "oauth"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveCredentialsRejectsNonJSON(t *testing.T) {
	srv, _ := newTestServer(t, []*manifest.IntegrationManifest{testManifest("jira")})

	req := httptest.NewRequest(http.MethodPost, "/integrations/connect/jira/credentials",
		bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComplete(t *testing.T) {
	srv, _ := newTestServer(t,
		[]*manifest.IntegrationManifest{testManifest("atlassian")},
		&stubStrategy{name: "atlassian", complete: &provider.CompleteResult{Connected: true}})

	rec, resp := doJSON(t, srv, http.MethodPost, "/integrations/connect/atlassian/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["connected"])
}

func TestDisconnect(t *testing.T) {
	strategy := &stubStrategy{name: "github", connected: true}
	srv, _ := newTestServer(t,
		[]*manifest.IntegrationManifest{testManifest("github")},
		strategy)

	rec, resp := doJSON(t, srv, http.MethodPost, "/integrations/connect/github/disconnect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.False(t, strategy.connected)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
