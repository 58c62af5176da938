package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"integrator-go/internal/accounts"
	"integrator-go/internal/secret"
)

// AuthMethodAPIToken selects Jira's API-token mode on a connect request.
const AuthMethodAPIToken = "api_token"

// Jira credential keys for the api_token auth method.
const (
	jiraHostKey  = "jira_host"
	jiraEmailKey = "jira_email"
	jiraTokenKey = "jira_api_token"
)

// JiraStrategy covers both of Jira's auth methods: redirect OAuth and API
// token. The token path verifies credentials synchronously instead of
// minting an authorization URL.
type JiraStrategy struct {
	oauth      *RedirectStrategy
	secrets    secret.Store
	httpClient *http.Client
	logger     *zap.Logger
}

// NewJiraStrategy creates the composite Jira strategy. The redirect strategy
// carries the OAuth method; httpClient bounds the synchronous verification
// request.
func NewJiraStrategy(oauth *RedirectStrategy, secrets secret.Store, httpClient *http.Client, logger *zap.Logger) *JiraStrategy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &JiraStrategy{
		oauth:      oauth,
		secrets:    secrets,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (s *JiraStrategy) Name() string { return "jira" }

// CheckConnected prefers the verified OAuth account list. Without one, the
// API-token mode approximates connected from credential presence alone.
// That is a weaker, unverified signal than the other provider classes and
// is kept that way deliberately.
func (s *JiraStrategy) CheckConnected(ctx context.Context) (bool, error) {
	connected, err := s.oauth.CheckConnected(ctx)
	if err != nil {
		return false, err
	}
	if connected {
		return true, nil
	}

	return secret.Has(ctx, s.secrets, jiraHostKey) &&
		secret.Has(ctx, s.secrets, jiraEmailKey) &&
		secret.Has(ctx, s.secrets, jiraTokenKey), nil
}

// VerifiesOnConnect reports that an explicit api_token connect must run the
// synchronous verification: the credential-presence approximation used by
// CheckConnected says nothing about whether the token actually works.
func (s *JiraStrategy) VerifiesOnConnect(authMethod string) bool {
	return authMethod == AuthMethodAPIToken
}

// StartFlow dispatches on the requested auth method: api_token verifies
// synchronously, anything else takes the OAuth redirect path.
func (s *JiraStrategy) StartFlow(ctx context.Context, authMethod string) (*StartResult, error) {
	if authMethod == AuthMethodAPIToken {
		return s.verifyAPIToken(ctx)
	}
	return s.oauth.StartFlow(ctx, authMethod)
}

// Disconnect removes OAuth accounts and the API-token credentials.
func (s *JiraStrategy) Disconnect(ctx context.Context) error {
	if err := s.oauth.Disconnect(ctx); err != nil {
		return err
	}
	for _, key := range []string{jiraHostKey, jiraEmailKey, jiraTokenKey} {
		if err := s.secrets.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

// Exchange, Identity, and SaveAccount delegate to the OAuth method so the
// callback receiver can finish redirect flows through this strategy.
func (s *JiraStrategy) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauth.Exchange(ctx, code)
}

func (s *JiraStrategy) Identity(ctx context.Context, token *oauth2.Token) (accounts.Account, error) {
	return s.oauth.Identity(ctx, token)
}

func (s *JiraStrategy) SaveAccount(a accounts.Account) error {
	return s.oauth.SaveAccount(a)
}

// verifyAPIToken performs one synchronous request against the Jira host with
// the stored credentials and returns a terminal result either way.
func (s *JiraStrategy) verifyAPIToken(ctx context.Context) (*StartResult, error) {
	host, err := s.secrets.Get(ctx, jiraHostKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", jiraHostKey, err)
	}
	email, err := s.secrets.Get(ctx, jiraEmailKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", jiraEmailKey, err)
	}
	token, err := s.secrets.Get(ctx, jiraTokenKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", jiraTokenKey, err)
	}

	baseURL := host
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/rest/api/2/myself", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(email, token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &VerificationError{Message: fmt.Sprintf("could not reach Jira at %s: %v", host, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = resp.Status
		}
		s.logger.Warn("Jira API token verification failed",
			zap.String("host", host),
			zap.Int("status", resp.StatusCode))
		return nil, &VerificationError{Message: message}
	}

	var myself struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&myself); err != nil {
		return nil, &VerificationError{Message: fmt.Sprintf("unexpected response from Jira: %v", err)}
	}

	message := fmt.Sprintf("Connected to Jira at %s", host)
	if myself.DisplayName != "" {
		message = fmt.Sprintf("Connected to Jira at %s as %s", host, myself.DisplayName)
	}

	s.logger.Info("Jira API token verified", zap.String("host", host))
	return &StartResult{Connected: true, Message: message}, nil
}
