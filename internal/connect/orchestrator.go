// Package connect implements the OAuth flow dispatcher: the write side of
// the orchestrator that turns a connect request into an immediate result, a
// redirect authorization URL, or an out-of-band instruction.
package connect

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"integrator-go/internal/catalog"
	"integrator-go/internal/observability"
	"integrator-go/internal/provider"
	"integrator-go/internal/secret"
)

// CredentialsMissingError lists the credential keys a connect request still
// needs before a flow can start.
type CredentialsMissingError struct {
	Integration     string
	RequiredSecrets []string
}

func (e *CredentialsMissingError) Error() string {
	return fmt.Sprintf("credentials missing for %s: %v", e.Integration, e.RequiredSecrets)
}

// CredentialsResult reports a credential save.
type CredentialsResult struct {
	Success           bool `json:"success"`
	SecretsConfigured bool `json:"secretsConfigured"`
}

// Orchestrator coordinates connect requests across provider strategies.
type Orchestrator struct {
	catalog  *catalog.Service
	checker  *catalog.Checker
	registry *provider.Registry
	secrets  secret.Store
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewOrchestrator creates the dispatcher. metrics may be nil in tests.
func NewOrchestrator(cat *catalog.Service, checker *catalog.Checker, registry *provider.Registry, secrets secret.Store, metrics *observability.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		catalog:  cat,
		checker:  checker,
		registry: registry,
		secrets:  secrets,
		metrics:  metrics,
		logger:   logger,
	}
}

// Connect dispatches a connect request for the named integration.
//
// Already-connected providers short-circuit to a terminal success without a
// new authorization URL. Unconfigured credentials short-circuit to a
// CredentialsMissingError carrying the missing keys.
func (o *Orchestrator) Connect(ctx context.Context, name, authMethod string) (*provider.StartResult, error) {
	m, err := o.catalog.Manifest(name)
	if err != nil {
		return nil, err
	}

	strategy, ok := o.registry.Get(name)
	if !ok {
		o.metrics.RecordConnect(name, observability.OutcomeError)
		return nil, fmt.Errorf("%w: %s", provider.ErrUnavailable, name)
	}

	// Strategies that verify credentials synchronously for the requested
	// method bypass the status short-circuit: their connected status is a
	// presence approximation and must not suppress the verification.
	verifies := false
	if v, ok := strategy.(provider.ConnectVerifier); ok {
		verifies = v.VerifiesOnConnect(authMethod)
	}

	if !verifies {
		connected, err := strategy.CheckConnected(ctx)
		if err != nil {
			// A failed status probe is not fatal to the dispatch; the flow can
			// still establish a fresh connection.
			o.logger.Warn("Status check failed before connect, proceeding",
				zap.String("integration", name),
				zap.Error(err))
			connected = false
		}
		if connected {
			o.metrics.RecordConnect(name, observability.OutcomeAlreadyConnected)
			return &provider.StartResult{
				Connected: true,
				Message:   fmt.Sprintf("%s is already connected", m.Title),
			}, nil
		}
	}

	if missing := o.checker.MissingFields(ctx, m, authMethod); len(missing) > 0 {
		o.metrics.RecordConnect(name, observability.OutcomeCredentialsMissing)
		return nil, &CredentialsMissingError{Integration: name, RequiredSecrets: missing}
	}

	result, err := strategy.StartFlow(ctx, authMethod)
	if err != nil {
		var verr *provider.VerificationError
		if errors.As(err, &verr) {
			o.metrics.RecordConnect(name, observability.OutcomeVerificationFailed)
		} else {
			o.metrics.RecordConnect(name, observability.OutcomeError)
		}
		return nil, err
	}

	switch {
	case result.Connected:
		o.metrics.RecordConnect(name, observability.OutcomeConnected)
	case result.RequiresOpenCode:
		o.metrics.RecordConnect(name, observability.OutcomeOpenCodeIssued)
	default:
		o.metrics.RecordConnect(name, observability.OutcomeAuthURLIssued)
	}
	return result, nil
}

// SaveCredentials persists string-valued credentials for an integration.
// Non-string values are skipped, not rejected. Returns whether the
// integration is configured after the save.
func (o *Orchestrator) SaveCredentials(ctx context.Context, name string, credentials map[string]interface{}, authMethod string) (*CredentialsResult, error) {
	m, err := o.catalog.Manifest(name)
	if err != nil {
		return nil, err
	}

	saved := 0
	for key, value := range credentials {
		str, ok := value.(string)
		if !ok {
			o.logger.Debug("Skipping non-string credential value",
				zap.String("integration", name),
				zap.String("key", key))
			continue
		}
		if err := o.secrets.Set(ctx, key, str, name); err != nil {
			return nil, fmt.Errorf("failed to save credential %s: %w", key, err)
		}
		saved++
	}

	o.logger.Info("Saved credentials",
		zap.String("integration", name),
		zap.String("auth_method", authMethod),
		zap.Int("count", saved))

	return &CredentialsResult{
		Success:           true,
		SecretsConfigured: o.checker.IsConfigured(ctx, m),
	}, nil
}

// Complete probes an out-of-band flow for its terminal state.
func (o *Orchestrator) Complete(ctx context.Context, name string) (*provider.CompleteResult, error) {
	if _, err := o.catalog.Manifest(name); err != nil {
		return nil, err
	}

	strategy, ok := o.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrUnavailable, name)
	}
	completer, ok := strategy.(provider.Completer)
	if !ok {
		return nil, fmt.Errorf("integration %s has no completion probe", name)
	}
	return completer.CompleteFlow(ctx)
}

// Disconnect removes the named integration's connection evidence.
func (o *Orchestrator) Disconnect(ctx context.Context, name string) error {
	if _, err := o.catalog.Manifest(name); err != nil {
		return err
	}
	strategy, ok := o.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", provider.ErrUnavailable, name)
	}
	if err := strategy.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", name, err)
	}
	o.logger.Info("Disconnected integration", zap.String("integration", name))
	return nil
}
