package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	appErrors "resumerecon/internal/errors"

	"github.com/go-playground/validator/v10"
)

// getHealthCheckTimeout returns the configured health check timeout
func (s *Server) getHealthCheckTimeout() time.Duration {
	if s.AppConfig == nil || s.AppConfig.Observability.HealthCheck.Timeout <= 0 {
		return 15 * time.Second
	}
	return s.AppConfig.Observability.HealthCheck.Timeout
}

// healthHandler reports service health including AI model and backend breaker status
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":  "healthy",
		"service": "resumerecon",
		"version": s.Version,
	}

	overallHealthy := true

	if s.Suggester != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.getHealthCheckTimeout())
		modelInfo := s.Suggester.GetModelInfo(ctx)
		cancel()
		response["ai_model"] = modelInfo
		if modelInfo != nil && !modelInfo.Available {
			overallHealthy = false
		}
	} else {
		response["ai_model"] = map[string]any{"configured": false}
	}

	circuitBreakers := map[string]any{}
	if s.Suggester != nil {
		circuitBreakers["ai"] = s.Suggester.CircuitBreakerStats()
	}
	if s.Backend != nil {
		healthy := s.Backend.IsHealthy()
		circuitBreakers["backend"] = map[string]any{"healthy": healthy}
		if !healthy {
			overallHealthy = false
		}
	} else {
		response["backend"] = map[string]any{"configured": false}
	}
	response["circuit_breakers"] = circuitBreakers

	if s.vaultWatcher != nil {
		response["api_key_watcher"] = s.vaultWatcher.Status()
	}

	status := http.StatusOK
	if !overallHealthy {
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// statsHandler provides server statistics including rate limiting, session and alias info
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"service": "resumerecon",
		"version": s.Version,
		"server": map[string]any{
			"max_request_size_bytes": s.MaxRequestSize,
			"max_suggestions":        s.MaxSuggestions,
			"api_keys":               s.APIKeys.Len(),
		},
		"sessions": map[string]any{
			"active": s.Sessions.Count(),
		},
	}

	// Add rate limiting stats if enabled
	if s.RateLimiter != nil {
		response["rate_limiting"] = s.RateLimiter.GetStats()
	} else {
		response["rate_limiting"] = map[string]any{
			"enabled": false,
		}
	}

	// Add configuration info
	if s.RateLimit != nil {
		response["rate_limit_config"] = map[string]any{
			"enabled":          s.RateLimit.Enabled,
			"requests_per_min": s.RateLimit.RequestsPerMin,
			"burst_capacity":   s.RateLimit.BurstCapacity,
			"by_ip":            s.RateLimit.ByIP,
			"by_api_key":       s.RateLimit.ByAPIKey,
		}
	}

	if s.Reconciler != nil {
		aliases := map[string]any{"stats": s.Reconciler.Aliases().Stats()}
		if s.aliasWatcher != nil {
			aliases["watcher_running"] = s.aliasWatcher.IsRunning()
			aliases["watched_file"] = s.aliasWatcher.File()
		}
		response["aliases"] = aliases
	}

	if s.Backend != nil {
		response["backend"] = s.Backend.Stats()
	}

	writeJSON(w, http.StatusOK, response)
}

// parseJSONRequest parses and validates the JSON request body into v.
// Numbers are kept as json.Number so structured suggestion values survive
// unchanged.
func (s *Server) parseJSONRequest(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("content-type must be application/json")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("request body too large (limit is %d bytes)", maxBytesErr.Limit)
		}
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("Failed to close request body: %v", err)
		}
	}()

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return s.validateStruct(v)
}

// validateStruct runs struct tag validation and flattens the first few
// failures into one readable error
func (s *Server) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, error, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// writeAppError maps an application error to an HTTP status and writes it
func writeAppError(w http.ResponseWriter, title string, err error) {
	response := ErrorResponse{Error: title, Message: err.Error()}
	status := http.StatusInternalServerError

	if appErr, ok := appErrors.As(err); ok {
		response.Code = appErr.Code
		response.Message = appErr.Message
		switch appErr.Type {
		case appErrors.ErrorTypeValidation:
			status = http.StatusBadRequest
		case appErrors.ErrorTypeNotFound:
			status = http.StatusNotFound
		case appErrors.ErrorTypeBackend, appErrors.ErrorTypeAI, appErrors.ErrorTypeParse:
			status = http.StatusBadGateway
		case appErrors.ErrorTypeNetwork:
			status = http.StatusGatewayTimeout
		case appErrors.ErrorTypeConfig:
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, response)
}
