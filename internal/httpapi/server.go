// Package httpapi exposes the integration catalog and connect operations
// over a chi router.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"integrator-go/internal/callback"
	"integrator-go/internal/catalog"
	"integrator-go/internal/connect"
	"integrator-go/internal/observability"
	"integrator-go/internal/provider"
)

const requestTimeout = 60 * time.Second

// APIResponse is the envelope every JSON endpoint returns.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Server provides HTTP API endpoints with chi router
type Server struct {
	catalog      *catalog.Service
	orchestrator *connect.Orchestrator
	callback     *callback.Handler
	metrics      *observability.Metrics
	logger       *zap.Logger
	router       *chi.Mux
}

// NewServer creates a new HTTP API server. callbackHandler and metrics may
// be nil; the matching routes are then not registered.
func NewServer(cat *catalog.Service, orch *connect.Orchestrator, cb *callback.Handler, metrics *observability.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		catalog:      cat,
		orchestrator: orch,
		callback:     cb,
		metrics:      metrics,
		logger:       logger,
		router:       chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.httpLoggingMiddleware())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	// CORS headers for browser access
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ready":true}`))
	})
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	// The callback endpoint serves HTML to the popup, not the API envelope,
	// and must stay outside the JSON route group.
	if s.callback != nil {
		s.router.Get("/oauth/{provider}/callback", s.callback.ServeHTTP)
	}

	s.router.Route("/integrations", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/catalog", s.handleGetCatalog)
		r.Get("/catalog/{name}", s.handleGetCatalogEntry)

		r.Post("/connect/{name}", s.handleConnect)
		r.Post("/connect/{name}/credentials", s.handleSaveCredentials)
		r.Post("/connect/{name}/complete", s.handleComplete)
		r.Post("/connect/{name}/disconnect", s.handleDisconnect)
	})
}

func (s *Server) httpLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			s.logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, APIResponse{Success: false, Error: message})
}

func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}) {
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// writeDispatchError maps dispatcher errors onto HTTP statuses.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	var missing *connect.CredentialsMissingError
	var verification *provider.VerificationError

	switch {
	case errors.Is(err, catalog.ErrUnknownIntegration):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, provider.ErrUnavailable):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &missing):
		s.writeJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Error:   missing.Error(),
			Data: map[string]interface{}{
				"credentialsMissing": true,
				"requiredSecrets":    missing.RequiredSecrets,
			},
		})
	case errors.As(err, &verification):
		// Verification output goes back verbatim so the caller can see what
		// the remote service said.
		s.writeError(w, http.StatusBadRequest, verification.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleGetCatalog returns every known integration with its configuration
// and connection status.
func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordCatalogRead()
	s.writeSuccess(w, s.catalog.List(r.Context()))
}

func (s *Server) handleGetCatalogEntry(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.metrics.RecordCatalogRead()
	entry, err := s.catalog.Get(r.Context(), name)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeSuccess(w, entry)
}

type connectRequest struct {
	AuthMethod string `json:"authMethod,omitempty"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req connectRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := s.orchestrator.Connect(r.Context(), name, req.AuthMethod)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeSuccess(w, result)
}

type credentialsRequest struct {
	Credentials map[string]interface{} `json:"credentials"`
	AuthMethod  string                 `json:"authMethod,omitempty"`
}

func (s *Server) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Credentials == nil {
		s.writeError(w, http.StatusBadRequest, "credentials object is required")
		return
	}

	result, err := s.orchestrator.SaveCredentials(r.Context(), name, req.Credentials, req.AuthMethod)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeSuccess(w, result)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	result, err := s.orchestrator.Complete(r.Context(), name)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeSuccess(w, result)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.orchestrator.Disconnect(r.Context(), name); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	s.writeSuccess(w, map[string]bool{"disconnected": true})
}
