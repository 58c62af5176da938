// Package catalog derives the read-only integration catalog: for each
// manifest, whether enough credentials exist to attempt a connection and
// whether a connection is actually established.
package catalog

import (
	"context"

	"integrator-go/internal/manifest"
	"integrator-go/internal/secret"
)

// Checker decides whether an integration's credentials are configured.
// Results are computed fresh on every call; the only caching is whatever the
// secret store itself does, so a credential save is visible to the next read.
type Checker struct {
	secrets secret.Store
}

// NewChecker creates a configuration checker over the given secret store.
func NewChecker(secrets secret.Store) *Checker {
	return &Checker{secrets: secrets}
}

// IsConfigured reports whether enough credentials exist for a connection
// attempt. With auth methods, the first fully-satisfied method (in
// declaration order) short-circuits the whole check to true, and within a
// method the first missing field short-circuits to the next method. Without
// auth methods, every required secret must resolve.
func (c *Checker) IsConfigured(ctx context.Context, m *manifest.IntegrationManifest) bool {
	if m.HasAuthMethods() {
		for i := range m.AuthMethods {
			if c.methodSatisfied(ctx, &m.AuthMethods[i]) {
				return true
			}
		}
		return false
	}

	for _, s := range m.RequiredSecrets {
		if s.Optional() {
			continue
		}
		if !secret.Has(ctx, c.secrets, s.Name) {
			return false
		}
	}
	return true
}

// MissingFields returns the credential keys still absent for the given auth
// method (or the flat required-secrets list when the manifest declares no
// methods). An unknown method id falls back to the method-less behavior.
func (c *Checker) MissingFields(ctx context.Context, m *manifest.IntegrationManifest, authMethod string) []string {
	var keys []string

	if m.HasAuthMethods() {
		method := m.Method(authMethod)
		if method == nil {
			// No method selected: report against the first declared method.
			method = &m.AuthMethods[0]
		}
		for _, field := range method.RequiredFields {
			if !secret.Has(ctx, c.secrets, field) {
				keys = append(keys, field)
			}
		}
		return keys
	}

	for _, s := range m.RequiredSecrets {
		if s.Optional() {
			continue
		}
		if !secret.Has(ctx, c.secrets, s.Name) {
			keys = append(keys, s.Name)
		}
	}
	return keys
}

func (c *Checker) methodSatisfied(ctx context.Context, method *manifest.AuthMethod) bool {
	for _, field := range method.RequiredFields {
		if !secret.Has(ctx, c.secrets, field) {
			return false
		}
	}
	return true
}
