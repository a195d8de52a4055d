package server

import (
	"net/http"

	"resumerecon/internal/observability"
	"resumerecon/internal/reconciler"
)

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes(om *observability.ObservabilityManager) *http.ServeMux {
	mux := http.NewServeMux()

	rateLimitHandler := s.createRateLimitMiddleware(om)
	requestLimitHandler := s.requestSizeLimitMiddleware()
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return rateLimitHandler(s.authMiddleware(requestLimitHandler(h)))
	}

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)

	// Stateless reconciliation
	mux.HandleFunc("POST /reconcile/structured", protect(reconcileHandler(s, om, "structure", (*reconciler.Reconciler).Structure)))
	mux.HandleFunc("POST /reconcile/text", protect(reconcileHandler(s, om, "generate", (*reconciler.Reconciler).GenerateText)))
	mux.HandleFunc("POST /reconcile/accepted", protect(reconcileHandler(s, om, "accepted", (*reconciler.Reconciler).AcceptedData)))
	mux.HandleFunc("POST /reconcile/parse", protect(s.createParseHandler(om)))
	mux.HandleFunc("POST /reconcile/normalize", protect(s.createNormalizeHandler(om)))

	// Upstream and downstream services
	mux.HandleFunc("POST /suggest", protect(s.createSuggestHandler(om)))
	mux.HandleFunc("POST /render", protect(s.createRenderHandler(om)))

	// Review sessions
	mux.HandleFunc("POST /sessions", protect(s.createOpenSessionHandler(om)))
	mux.HandleFunc("GET /sessions/{id}", protect(s.createGetSessionHandler(om)))
	mux.HandleFunc("POST /sessions/{id}/accept", protect(s.createAcceptHandler(om)))
	mux.HandleFunc("POST /sessions/{id}/edit", protect(s.createEditHandler(om)))
	mux.HandleFunc("POST /sessions/{id}/apply", protect(s.createApplyHandler(om)))
	mux.HandleFunc("DELETE /sessions/{id}", protect(s.createDiscardHandler(om)))

	return mux
}

// Handler returns the routed handler, wrapped with HTTP instrumentation when
// observability is enabled
func (s *Server) Handler(om *observability.ObservabilityManager) http.Handler {
	mux := s.setupRoutes(om)
	if om == nil {
		return mux
	}
	return om.HTTPMiddleware()(mux)
}

// authMiddleware provides API key authentication
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if no API keys are configured
		if s.APIKeys.Len() == 0 {
			next(w, r)
			return
		}

		apiKey := requestAPIKey(r)
		if apiKey == "" {
			s.Logger.Info("Authentication failed: missing API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r))
			writeErrorResponse(w, "Missing API key", "X-API-Key header or Authorization Bearer token required", http.StatusUnauthorized)
			return
		}

		if !s.APIKeys.Valid(apiKey) {
			s.Logger.Info("Authentication failed: invalid API key",
				"endpoint", r.URL.Path,
				"client_ip", getClientIP(r),
				"api_key_prefix", maskAPIKey(apiKey))
			writeErrorResponse(w, "Invalid API key", "Unauthorized access", http.StatusUnauthorized)
			return
		}

		s.Logger.Debug("API authentication successful",
			"endpoint", r.URL.Path,
			"api_key_prefix", maskAPIKey(apiKey))

		next(w, r)
	}
}

// requestSizeLimitMiddleware limits the size of incoming requests
func (s *Server) requestSizeLimitMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestSize)
			}
			next(w, r)
		}
	}
}

// maskAPIKey masks an API key for logging (shows only first 4 characters)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "****"
	}
	return apiKey[:4] + "****"
}
