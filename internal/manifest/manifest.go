// Package manifest defines the declarative catalog of integrations: what each
// third-party service is called, which credentials it needs, and how its OAuth
// flow is parameterized. Manifests are immutable once loaded.
package manifest

// RequiredSecret names one credential key an integration needs before a
// connection can be attempted.
type RequiredSecret struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Required *bool  `yaml:"required,omitempty" json:"required,omitempty"`
}

// Optional reports whether the secret may be absent without blocking a
// connection attempt. Only an explicit `required: false` makes a secret
// optional.
func (s RequiredSecret) Optional() bool {
	return s.Required != nil && !*s.Required
}

// AuthMethod is one of several alternative credential sets that can satisfy
// an integration's configuration requirement.
type AuthMethod struct {
	ID             string   `yaml:"id" json:"id" validate:"required"`
	RequiredFields []string `yaml:"requiredFields" json:"requiredFields" validate:"min=1,dive,required"`
}

// OAuthConfig holds the authorization endpoints and scopes for integrations
// using a redirect-based OAuth flow.
type OAuthConfig struct {
	AuthorizationURL string   `yaml:"authorizationUrl" json:"authorizationUrl" validate:"required,url"`
	TokenURL         string   `yaml:"tokenUrl" json:"tokenUrl" validate:"required,url"`
	Scopes           []string `yaml:"scopes" json:"scopes"`
}

// IntegrationManifest describes one integration's identity, required
// credentials, and OAuth parameters.
type IntegrationManifest struct {
	Name            string           `yaml:"name" json:"name" validate:"required"`
	Title           string           `yaml:"title" json:"title" validate:"required"`
	RequiredSecrets []RequiredSecret `yaml:"requiredSecrets" json:"requiredSecrets"`
	AuthMethods     []AuthMethod     `yaml:"authMethods,omitempty" json:"authMethods,omitempty"`
	OAuth           *OAuthConfig     `yaml:"oauth,omitempty" json:"oauth,omitempty"`
}

// Method returns the auth method with the given id, or nil if the manifest
// does not declare it.
func (m *IntegrationManifest) Method(id string) *AuthMethod {
	for i := range m.AuthMethods {
		if m.AuthMethods[i].ID == id {
			return &m.AuthMethods[i]
		}
	}
	return nil
}

// HasAuthMethods reports whether the manifest declares alternative auth
// methods instead of a flat required-secrets list.
func (m *IntegrationManifest) HasAuthMethods() bool {
	return len(m.AuthMethods) > 0
}
