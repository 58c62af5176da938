// Package callback receives redirect-class OAuth callbacks, validates the
// single-use state nonce, finishes the code exchange, and serves the
// terminal page that notifies the opener window.
package callback

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"integrator-go/internal/flow"
	"integrator-go/internal/observability"
	"integrator-go/internal/provider"
)

// stateMismatchMessage is deliberately generic: it never reveals whether the
// state was missing, expired, or simply wrong.
const stateMismatchMessage = "Authorization could not be completed. Please retry the connection."

// Handler serves GET /oauth/{provider}/callback.
type Handler struct {
	registry *provider.Registry
	flows    *flow.Coordinator
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewHandler creates the callback receiver.
func NewHandler(registry *provider.Registry, flows *flow.Coordinator, metrics *observability.Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		flows:    flows,
		metrics:  metrics,
		logger:   logger,
	}
}

// ServeHTTP handles one provider callback. Terminal output is always the
// self-closing HTML page; success or failure is carried in the message it
// posts to the opener.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("Provider returned authorization error",
			zap.String("provider", name),
			zap.String("error", errParam))
		h.flows.Transition(name, flow.StateFailed)
		h.metrics.RecordCallback(name, "provider_error")
		h.renderResult(w, name, false, query.Get("error_description"))
		return
	}

	if !h.flows.ConsumeNonce(name, query.Get("state")) {
		h.logger.Warn("Rejected callback with invalid state", zap.String("provider", name))
		h.metrics.RecordCallback(name, "state_mismatch")
		h.renderResult(w, name, false, stateMismatchMessage)
		return
	}

	strategy, ok := h.registry.Get(name)
	if !ok {
		h.metrics.RecordCallback(name, "unknown_provider")
		h.renderResult(w, name, false, fmt.Sprintf("Unknown provider %q.", name))
		return
	}
	exchanger, ok := strategy.(provider.CodeExchanger)
	if !ok {
		h.metrics.RecordCallback(name, "not_redirect_class")
		h.renderResult(w, name, false, fmt.Sprintf("Provider %q does not use a redirect callback.", name))
		return
	}

	token, err := exchanger.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		h.logger.Error("Code exchange failed",
			zap.String("provider", name),
			zap.Error(err))
		h.flows.Transition(name, flow.StateFailed)
		h.metrics.RecordCallback(name, "exchange_failed")
		h.renderResult(w, name, false, "Token exchange with the provider failed.")
		return
	}

	account, err := exchanger.Identity(r.Context(), token)
	if err != nil {
		h.logger.Error("Identity fetch failed",
			zap.String("provider", name),
			zap.Error(err))
		h.flows.Transition(name, flow.StateFailed)
		h.metrics.RecordCallback(name, "identity_failed")
		h.renderResult(w, name, false, "Could not determine the connected account.")
		return
	}

	if err := exchanger.SaveAccount(account); err != nil {
		h.logger.Error("Failed to persist connected account",
			zap.String("provider", name),
			zap.Error(err))
		h.flows.Transition(name, flow.StateFailed)
		h.metrics.RecordCallback(name, "persist_failed")
		h.renderResult(w, name, false, "Could not store the connected account.")
		return
	}

	h.flows.Transition(name, flow.StateConnected)
	h.metrics.RecordCallback(name, "connected")
	h.logger.Info("OAuth callback completed",
		zap.String("provider", name),
		zap.String("account_id", account.ID))
	h.renderResult(w, name, true, "")
}
