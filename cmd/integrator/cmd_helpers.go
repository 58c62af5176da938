package main

import (
	"go.uber.org/zap"

	"integrator-go/internal/config"
	"integrator-go/internal/manifest"
)

// loadManifests reads the integration manifests from the configured
// directory. The builtin Atlassian entry is always present even when the
// directory is empty.
func loadManifests(cfg *config.Config, logger *zap.Logger) []*manifest.IntegrationManifest {
	loader := manifest.NewLoader(cfg.ManifestsDir, logger)
	manifests := loader.Load()
	logger.Info("Loaded integration manifests",
		zap.Int("count", len(manifests)),
		zap.String("dir", cfg.ManifestsDir))
	return manifests
}
