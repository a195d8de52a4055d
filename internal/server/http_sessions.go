package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	appErrors "resumerecon/internal/errors"
	"resumerecon/internal/observability"
	"resumerecon/internal/types"

	"go.opentelemetry.io/otel/attribute"
)

// createOpenSessionHandler opens a review session from suggestions or sectionDiffs
func (s *Server) createOpenSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.sessions.open")
		defer span.End()

		var req CreateSessionRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			failSpan(span, err, "validation")
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
		suggestions, err := s.suggestions(req.ReconcileRequest)
		if err != nil {
			failSpan(span, err, "validation")
			writeErrorResponse(w, "Invalid suggestions", err.Error(), http.StatusBadRequest)
			return
		}
		if len(suggestions) == 0 {
			writeErrorResponse(w, "No suggestions", "suggestions or sectionDiffs must not be empty", http.StatusBadRequest)
			return
		}

		accepted, edited := selection(req.ReconcileRequest, suggestions)
		session := s.Sessions.Create(suggestions, accepted, edited)
		om.GetMetrics().RecordSessionEvent(ctx, "opened")

		span.SetAttributes(
			attribute.String("session.id", session.ID),
			attribute.Int("request.suggestions", len(suggestions)),
		)
		s.Logger.Info("Review session opened", "session_id", session.ID, "suggestions", len(suggestions))

		session.Lock()
		defer session.Unlock()
		writeJSON(w, http.StatusCreated, s.sessionView(session))
	}
}

// createGetSessionHandler returns session state with a preview of the final text
func (s *Server) createGetSessionHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return s.withSession(om, "get", func(w http.ResponseWriter, r *http.Request, session *ReviewSession) {
		writeJSON(w, http.StatusOK, s.sessionView(session))
	})
}

// createAcceptHandler accepts or rejects suggestion ids
func (s *Server) createAcceptHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return s.withSession(om, "accept", func(w http.ResponseWriter, r *http.Request, session *ReviewSession) {
		var req AcceptRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
		if unknown := session.UnknownIDs(append(append([]string(nil), req.Accept...), req.Reject...)); len(unknown) > 0 {
			writeAppError(w, "Unknown suggestion ids", unknownIDsError(unknown))
			return
		}

		session.ApplyAccept(req)
		s.Sessions.Touch(session)
		om.GetMetrics().RecordSessionEvent(r.Context(), "updated")
		writeJSON(w, http.StatusOK, s.sessionView(session))
	})
}

// createEditHandler sets or clears the reviewer's override of one suggestion
func (s *Server) createEditHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return s.withSession(om, "edit", func(w http.ResponseWriter, r *http.Request, session *ReviewSession) {
		var req EditRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
		if unknown := session.UnknownIDs([]string{req.ID}); len(unknown) > 0 {
			writeAppError(w, "Unknown suggestion ids", unknownIDsError(unknown))
			return
		}

		session.SetEdit(req.ID, req.Text)
		s.Sessions.Touch(session)
		om.GetMetrics().RecordSessionEvent(r.Context(), "updated")
		writeJSON(w, http.StatusOK, s.sessionView(session))
	})
}

// createApplyHandler reconciles the session, persists the improved resume
// through the backend and closes the session. A failed save leaves the
// session open so the reviewer can retry.
func (s *Server) createApplyHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return s.withSession(om, "apply", func(w http.ResponseWriter, r *http.Request, session *ReviewSession) {
		ctx := r.Context()
		if s.Backend == nil {
			writeErrorResponse(w, "Persistence unavailable", "no backend is configured", http.StatusServiceUnavailable)
			return
		}

		var req ApplyRequest
		if err := s.parseJSONRequest(r, &req); err != nil {
			writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}

		suggestions, accepted, edited := session.Snapshot()
		if len(accepted) == 0 {
			writeErrorResponse(w, "Nothing accepted", "accept at least one suggestion before applying", http.StatusBadRequest)
			return
		}

		start := time.Now()
		acceptedData := s.Reconciler.AcceptedData(suggestions, accepted, edited)
		text := s.Reconciler.GenerateText(suggestions, accepted, edited)
		s.recordReconcile(ctx, om, "apply", start, text.Warnings)
		om.GetMetrics().RecordSuggestions(ctx, len(suggestions), len(accepted))

		saved, err := s.Backend.SaveImprovedResume(ctx, types.ImprovedResumeRequest{
			AcceptedSuggestions: acceptedData.Value,
			FinalResumeText:     text.Value,
			OriginalResumeID:    req.OriginalResumeID,
			Title:               req.Title,
			Metadata:            req.Metadata,
			ImprovementScore:    req.ImprovementScore,
		})
		if err != nil {
			s.Logger.LogError(err, "Failed to persist improved resume", "session_id", session.ID)
			writeAppError(w, "Failed to save improved resume", err)
			return
		}

		s.Sessions.Close(session)
		om.GetMetrics().RecordSessionEvent(ctx, "applied")
		s.Logger.Info("Review session applied", "session_id", session.ID,
			"resume_id", saved.ID, "accepted", len(accepted), "warnings", len(text.Warnings))

		writeJSON(w, http.StatusOK, ApplyResponse{Resume: saved, Warnings: text.Warnings})
	})
}

// createDiscardHandler closes a session without persisting it
func (s *Server) createDiscardHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return s.withSession(om, "discard", func(w http.ResponseWriter, r *http.Request, session *ReviewSession) {
		s.Sessions.Close(session)
		om.GetMetrics().RecordSessionEvent(r.Context(), "discarded")
		w.WriteHeader(http.StatusNoContent)
	})
}

// withSession resolves {id}, locks the session for the duration of the
// handler and rejects sessions that were closed meanwhile
func (s *Server) withSession(om *observability.ObservabilityManager, operation string,
	handle func(w http.ResponseWriter, r *http.Request, session *ReviewSession),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.sessions."+operation)
		defer span.End()

		id := r.PathValue("id")
		span.SetAttributes(attribute.String("session.id", id))

		session, ok := s.Sessions.Get(id)
		if !ok {
			writeAppError(w, "Session not found", errSessionNotFound(id))
			return
		}

		session.Lock()
		defer session.Unlock()
		if session.Closed() {
			writeAppError(w, "Session not found", errSessionNotFound(id))
			return
		}

		handle(w, r.WithContext(ctx), session)
	}
}

// sessionView renders the session with a preview of its final text.
// Callers hold the session lock.
func (s *Server) sessionView(session *ReviewSession) SessionView {
	suggestions, accepted, edited := session.Snapshot()
	preview := s.Reconciler.GenerateText(suggestions, accepted, edited)
	var warnings any
	if len(preview.Warnings) > 0 {
		warnings = preview.Warnings
	}
	return session.view(preview.Value, warnings)
}

func unknownIDsError(ids []string) error {
	return appErrors.NewValidationError(appErrors.ErrCodeUnknownID,
		fmt.Sprintf("unknown suggestion ids: %s", strings.Join(ids, ", ")), nil).
		WithContext("ids", ids)
}
