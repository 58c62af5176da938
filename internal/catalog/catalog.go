package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"integrator-go/internal/manifest"
)

// ErrUnknownIntegration indicates the requested integration is not in the
// catalog.
var ErrUnknownIntegration = errors.New("unknown integration")

// ConnectionResolver reports whether a provider has a live connection.
// Implemented by the provider registry.
type ConnectionResolver interface {
	IsConnected(ctx context.Context, name string) (bool, error)
}

// Entry is one derived catalog row. Recomputed on every read, never
// persisted.
type Entry struct {
	Manifest          *manifest.IntegrationManifest `json:"manifest"`
	SecretsConfigured bool                          `json:"secretsConfigured"`
	IsConnected       bool                          `json:"isConnected"`
}

// Service assembles catalog entries from the manifest list, the credential
// checker, and per-provider connection status.
type Service struct {
	manifests []*manifest.IntegrationManifest
	checker   *Checker
	resolver  ConnectionResolver
	logger    *zap.Logger
}

// NewService creates a catalog service over an already-loaded manifest list.
func NewService(manifests []*manifest.IntegrationManifest, checker *Checker, resolver ConnectionResolver, logger *zap.Logger) *Service {
	return &Service{
		manifests: manifests,
		checker:   checker,
		resolver:  resolver,
		logger:    logger,
	}
}

// Manifest returns the manifest with the given name, or ErrUnknownIntegration.
// When the catalog holds duplicates the first entry wins.
func (s *Service) Manifest(name string) (*manifest.IntegrationManifest, error) {
	for _, m := range s.manifests {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, ErrUnknownIntegration
}

// List builds the full catalog. A status query failing for one provider
// downgrades that provider to disconnected; it never fails the aggregate
// response.
func (s *Service) List(ctx context.Context) []Entry {
	entries := make([]Entry, 0, len(s.manifests))
	for _, m := range s.manifests {
		entries = append(entries, s.entry(ctx, m))
	}
	return entries
}

// Get builds the catalog entry for one integration.
func (s *Service) Get(ctx context.Context, name string) (*Entry, error) {
	m, err := s.Manifest(name)
	if err != nil {
		return nil, err
	}
	e := s.entry(ctx, m)
	return &e, nil
}

func (s *Service) entry(ctx context.Context, m *manifest.IntegrationManifest) Entry {
	connected, err := s.resolver.IsConnected(ctx, m.Name)
	if err != nil {
		s.logger.Warn("Connection status check failed, treating as disconnected",
			zap.String("integration", m.Name),
			zap.Error(err))
		connected = false
	}

	return Entry{
		Manifest:          m,
		SecretsConfigured: s.checker.IsConfigured(ctx, m),
		IsConnected:       connected,
	}
}
