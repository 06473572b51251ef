package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/repopulse/repopulse/internal/analysis"
	mw "github.com/repopulse/repopulse/internal/api/middleware"
	"github.com/repopulse/repopulse/internal/api/response"
	"github.com/repopulse/repopulse/internal/store"
	"github.com/repopulse/repopulse/pkg/models"
)

// AnalysisService defines the orchestrator operations the handlers depend on.
type AnalysisService interface {
	StartAnalysis(ctx context.Context, contextID, userID uuid.UUID, accessToken string) (*analysis.StartResult, error)
	Cancel(ctx context.Context, params analysis.CancelParams, callerID uuid.UUID) (int, error)
	JobsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Job, error)
	GetJob(ctx context.Context, jobID, callerID uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, jobID, callerID uuid.UUID, status models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error)
}

// NewStartAnalysisHandler returns the handler for POST /api/v1/analysis.
func NewStartAnalysisHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			ContextID uuid.UUID `json:"context_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ContextID == uuid.Nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "context_id is required", nil)
			return
		}

		result, err := svc.StartAnalysis(r.Context(), req.ContextID, userID, mw.GetGithubToken(r))
		if err != nil {
			writeAnalysisError(w, err)
			return
		}

		if result.Deduplicated {
			response.JSON(w, result)
			return
		}
		response.Accepted(w, result)
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/analysis/jobs.
func NewListJobsHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobs, err := svc.JobsForUser(r.Context(), userID)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}
		response.JSON(w, newJobViews(jobs))
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/analysis/jobs/{jobID}.
func NewGetJobHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(pathParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
			return
		}

		job, err := svc.GetJob(r.Context(), jobID, userID)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}
		response.JSON(w, newJobView(job))
	}
}

// NewCancelHandler returns the handler for POST /api/v1/analysis/cancel.
func NewCancelHandler(svc AnalysisService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			JobID     *uuid.UUID `json:"job_id"`
			ContextID *uuid.UUID `json:"context_id"`
			Reason    string     `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Reason == "" {
			req.Reason = "cancelled by user"
		}

		count, err := svc.Cancel(r.Context(), analysis.CancelParams{
			JobID:     req.JobID,
			ContextID: req.ContextID,
			Reason:    req.Reason,
		}, userID)
		if err != nil {
			if errors.Is(err, analysis.ErrNoTarget) {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Either job_id or context_id is required", nil)
				return
			}
			writeAnalysisError(w, err)
			return
		}

		response.JSON(w, map[string]any{"cancelled_count": count})
	}
}

// writeAnalysisError maps domain errors to HTTP responses. Anything not
// recognized becomes a generic internal error; the detail stays server-side.
func writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, analysis.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "You do not own this resource", nil)
	case errors.Is(err, analysis.ErrContextInactive):
		response.Error(w, http.StatusConflict, "CONTEXT_INACTIVE", "Context has been deactivated", nil)
	case errors.Is(err, store.ErrValidation):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		slog.Error("analysis request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
