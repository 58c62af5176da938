package provider

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"integrator-go/internal/accounts"
	"integrator-go/internal/flow"
	"integrator-go/internal/manifest"
	"integrator-go/internal/secret"
)

// Deps carries everything strategy construction needs. All dependencies are
// explicit; nothing here is a process-global.
type Deps struct {
	Secrets      secret.Store
	Accounts     *accounts.Store
	Flows        *flow.Coordinator
	CallbackBase string
	// AtlassianAuthURL is the hosted sign-in page for the Atlassian broker.
	AtlassianAuthURL string
	HTTPClient       *http.Client
	Logger           *zap.Logger
}

// BuildRegistry wires a strategy for every known provider that appears in
// the manifest list. Manifests without a known strategy stay catalog-only.
// When the catalog holds duplicate names the first manifest wins.
func BuildRegistry(manifests []*manifest.IntegrationManifest, deps Deps) *Registry {
	registry := NewRegistry(deps.Logger)

	for _, m := range manifests {
		if _, exists := registry.Get(m.Name); exists {
			continue
		}

		switch m.Name {
		case "google":
			registry.Register(NewRedirectStrategy(m, deps.Secrets, deps.Accounts, deps.Flows,
				deps.CallbackBase, GoogleIdentity(), deps.Logger,
				WithAuthCodeOptions(oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))))

		case "github":
			registry.Register(NewRedirectStrategy(m, deps.Secrets, deps.Accounts, deps.Flows,
				deps.CallbackBase, GitHubIdentity(), deps.Logger))

		case "linear":
			registry.Register(NewRedirectStrategy(m, deps.Secrets, deps.Accounts, deps.Flows,
				deps.CallbackBase, LinearIdentity(), deps.Logger))

		case "jira":
			oauth := NewRedirectStrategy(m, deps.Secrets, deps.Accounts, deps.Flows,
				deps.CallbackBase, JiraIdentity(), deps.Logger,
				WithAuthCodeOptions(
					oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
					oauth2.SetAuthURLParam("prompt", "consent")))
			registry.Register(NewJiraStrategy(oauth, deps.Secrets, deps.HTTPClient, deps.Logger))

		case "atlassian":
			registry.Register(NewHostMediatedStrategy(m.Name, m.Title,
				NewStoreTokenSource(deps.Accounts, m.Name), deps.AtlassianAuthURL, deps.Flows, deps.Logger))

		default:
			deps.Logger.Debug("No strategy for manifest, catalog-only",
				zap.String("integration", m.Name))
		}
	}

	return registry
}
