package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	appErrors "resumerecon/internal/errors"
	"resumerecon/internal/formatters"
	"resumerecon/internal/observability"
	"resumerecon/internal/reconciler"
	"resumerecon/internal/types"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "resumerecon.api"

// suggestions flattens and validates the suggestions of a reconcile request
func (s *Server) suggestions(req ReconcileRequest) ([]types.Suggestion, error) {
	list := append([]types.Suggestion(nil), req.Suggestions...)
	list = append(list, types.AnalysisResponse{SectionDiffs: req.SectionDiffs}.Flatten()...)

	if s.MaxSuggestions > 0 && len(list) > s.MaxSuggestions {
		return nil, fmt.Errorf("too many suggestions: %d (limit is %d)", len(list), s.MaxSuggestions)
	}
	for i := range list {
		if err := s.validateStruct(&list[i]); err != nil {
			return nil, fmt.Errorf("suggestion %d: %w", i, err)
		}
	}
	return list, nil
}

// selection resolves the accepted set and edits of a reconcile request
func selection(req ReconcileRequest, suggestions []types.Suggestion) (types.AcceptedSet, types.EditedText) {
	if req.AcceptAll {
		return types.AcceptAll(suggestions), req.EditedText
	}
	return types.NewAcceptedSet(req.AcceptedIDs...), req.EditedText
}

// reconcileHandler builds a handler for one reconciler operation over a
// ReconcileRequest. The response is the operation's Result, formatted per
// the optional ?format= query parameter.
func reconcileHandler[T any](s *Server, om *observability.ObservabilityManager, operation string,
	run func(r *reconciler.Reconciler, suggestions []types.Suggestion, accepted types.AcceptedSet, edited types.EditedText) reconciler.Result[T],
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.reconcile."+operation)
		defer span.End()

		var req ReconcileRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			failSpan(span, err, "validation")
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
		suggestions, err := s.suggestions(req)
		if err != nil {
			failSpan(span, err, "validation")
			writeErrorResponse(w, "Invalid suggestions", err.Error(), http.StatusBadRequest)
			return
		}
		accepted, edited := selection(req, suggestions)

		span.SetAttributes(
			attribute.String("operation", operation),
			attribute.Int("request.suggestions", len(suggestions)),
			attribute.Int("request.accepted", len(accepted)),
			attribute.Int("request.edits", len(edited)),
		)

		start := time.Now()
		result := run(s.Reconciler, suggestions, accepted, edited)
		s.recordReconcile(ctx, om, operation, start, result.Warnings)
		om.GetMetrics().RecordSuggestions(ctx, len(suggestions), len(accepted))

		span.SetAttributes(attribute.Int("response.warnings", len(result.Warnings)))
		s.writeResult(w, r, result)
	}
}

// createParseHandler parses flattened resume text back into sections
func (s *Server) createParseHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.reconcile.parse")
		defer span.End()

		var req ParseRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			failSpan(span, err, "validation")
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
		span.SetAttributes(attribute.Int("request.text_length", len(req.Text)))

		start := time.Now()
		result := s.Reconciler.Parse(req.Text)
		s.recordReconcile(ctx, om, "parse", start, result.Warnings)
		s.writeResult(w, r, result)
	}
}

// createNormalizeHandler coerces arbitrary section content into an array
func (s *Server) createNormalizeHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.reconcile.normalize")
		defer span.End()

		var req NormalizeRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			failSpan(span, err, "validation")
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		start := time.Now()
		result := s.Reconciler.Normalize(req.Content)
		s.recordReconcile(ctx, om, "normalize", start, result.Warnings)
		writeJSON(w, http.StatusOK, result)
	}
}

// createSuggestHandler asks the AI provider for suggestions and optionally
// opens a review session for them
func (s *Server) createSuggestHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.suggest")
		defer span.End()

		if s.Suggester == nil {
			writeErrorResponse(w, "AI suggestions unavailable", "no AI provider is configured", http.StatusServiceUnavailable)
			return
		}

		var req SuggestRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			failSpan(span, err, "validation")
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.ResumeText) == "" {
			writeErrorResponse(w, "Missing resume text", "resumeText field is required", http.StatusBadRequest)
			return
		}

		span.SetAttributes(
			attribute.Int("request.resume_length", len(req.ResumeText)),
			attribute.Int("request.job_length", len(req.JobDescription)),
			attribute.String("operation", "suggest"),
		)

		input := types.SuggestInput{ResumeText: req.ResumeText, JobDescription: req.JobDescription}
		metrics := om.GetMetrics()
		var analysis types.AnalysisResponse
		err := metrics.TrackAIOperationWithTokens(ctx, "suggest", func(ctx context.Context) *observability.AIOperationResult {
			output, tokenUsage, aiErr := s.Suggester.Suggest(ctx, input)
			analysis = output
			return &observability.AIOperationResult{
				Error:      aiErr,
				TokenUsage: (*observability.TokenUsage)(tokenUsage),
			}
		})
		if err != nil {
			failSpan(span, err, "ai_processing")
			s.Logger.LogError(err, "Suggestion generation failed")
			writeAppError(w, "Failed to generate suggestions", err)
			return
		}

		response := SuggestResponse{Analysis: analysis, Model: s.Suggester.Model()}
		if req.OpenSession {
			session := s.Sessions.Create(analysis.Flatten(), nil, nil)
			metrics.RecordSessionEvent(ctx, "opened")
			response.SessionID = session.ID
		}

		span.SetAttributes(
			attribute.Bool("success", true),
			attribute.Int("response.suggestions", len(analysis.Flatten())),
		)
		writeJSON(w, http.StatusOK, response)
	}
}

// createRenderHandler renders final text, or the result of a reconcile
// request, to PDF through the backend
func (s *Server) createRenderHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.render")
		defer span.End()

		if s.Backend == nil {
			writeErrorResponse(w, "Rendering unavailable", "no backend is configured", http.StatusServiceUnavailable)
			return
		}

		var req RenderRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			failSpan(span, err, "validation")
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		renderReq := types.RenderRequest{FinalResumeText: req.Text, Template: req.Template}
		switch {
		case strings.TrimSpace(req.Text) != "":
		case req.Reconcile != nil:
			suggestions, err := s.suggestions(*req.Reconcile)
			if err != nil {
				failSpan(span, err, "validation")
				writeErrorResponse(w, "Invalid suggestions", err.Error(), http.StatusBadRequest)
				return
			}
			accepted, edited := selection(*req.Reconcile, suggestions)
			start := time.Now()
			structured := s.Reconciler.Structure(suggestions, accepted, edited)
			rendered := s.Reconciler.Render(structured.Value)
			s.recordReconcile(ctx, om, "render", start, append(structured.Warnings, rendered.Warnings...))
			renderReq.Structured = &structured.Value
			renderReq.FinalResumeText = rendered.Value
		default:
			writeErrorResponse(w, "Nothing to render", "text or reconcile is required", http.StatusBadRequest)
			return
		}

		pdf, err := s.Backend.RenderPDF(ctx, renderReq)
		if err != nil {
			failSpan(span, err, "backend")
			s.Logger.LogError(err, "PDF rendering failed")
			writeAppError(w, "Failed to render resume", err)
			return
		}

		span.SetAttributes(attribute.Int("response.pdf_bytes", len(pdf)))
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="resume.pdf"`)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(pdf); err != nil {
			span.RecordError(err)
		}
	}
}

// writeResult writes a reconcile result as JSON, or as text or markdown
// when ?format= asks for it
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result any) {
	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, result)
		return
	}

	output, err := formatters.GlobalRegistry.Format(result, format)
	if err != nil {
		writeErrorResponse(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}
	contentType := "text/plain; charset=utf-8"
	if format == "markdown" {
		contentType = "text/markdown; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(output))
}

// recordReconcile records reconcile metrics and logs degraded results
func (s *Server) recordReconcile(ctx context.Context, om *observability.ObservabilityManager, operation string, start time.Time, warnings []reconciler.Warning) {
	codes := make([]string, len(warnings))
	for i, w := range warnings {
		codes[i] = string(w.Code)
	}
	om.GetMetrics().RecordReconcile(ctx, operation, time.Since(start), codes)

	if len(warnings) > 0 {
		s.Logger.Debug("Reconcile produced warnings", "operation", operation, "codes", codes)
	}
}

func failSpan(span trace.Span, err error, kind string) {
	span.RecordError(err)
	span.SetAttributes(attribute.String("error.type", kind))
}

// createRateLimitMiddleware adds rate limit hit metrics to rate limiting
func (s *Server) createRateLimitMiddleware(om *observability.ObservabilityManager) func(http.HandlerFunc) http.HandlerFunc {
	originalMiddleware := s.rateLimitMiddleware()
	if s.RateLimiter == nil {
		return originalMiddleware
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		limited := originalMiddleware(next)
		return func(w http.ResponseWriter, r *http.Request) {
			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			limited(wrapper, r)

			if wrapper.statusCode == http.StatusTooManyRequests {
				key := getRateLimitKey(r, s.RateLimit.ByAPIKey, s.RateLimit.ByIP)
				om.GetMetrics().RecordRateLimitHit(r.Context(), rateLimitKeyType(key))
			}
		}
	}
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// errSessionNotFound is returned for unknown, expired or closed sessions
func errSessionNotFound(id string) error {
	return appErrors.NewNotFoundError(appErrors.ErrCodeSessionNotFound,
		fmt.Sprintf("review session %s not found or already closed", id), nil)
}
