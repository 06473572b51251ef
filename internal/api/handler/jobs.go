package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/repopulse/repopulse/internal/analysis"
	mw "github.com/repopulse/repopulse/internal/api/middleware"
	"github.com/repopulse/repopulse/internal/api/response"
	"github.com/repopulse/repopulse/internal/jobs"
	"github.com/repopulse/repopulse/internal/store"
	"github.com/repopulse/repopulse/pkg/models"
)

// HealthService defines the monitor operations the handlers depend on.
type HealthService interface {
	FindStuck(ctx context.Context, userID uuid.UUID, timeout time.Duration) ([]analysis.StuckJob, error)
	CheckHealth(ctx context.Context, userID uuid.UUID, timeout time.Duration, autoCancel bool) (*analysis.HealthReport, error)
	AutoFix(ctx context.Context, userID uuid.UUID, opts analysis.AutoFixOptions) (*analysis.AutoFixResult, error)
}

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// timeoutFromQuery parses timeout_minutes, defaulting to the standard
// 30-minute stuck window.
func timeoutFromQuery(r *http.Request) time.Duration {
	v := r.URL.Query().Get("timeout_minutes")
	if v == "" {
		return analysis.DefaultStuckTimeout
	}
	mins, err := strconv.Atoi(v)
	if err != nil || mins <= 0 {
		return analysis.DefaultStuckTimeout
	}
	return time.Duration(mins) * time.Minute
}

// NewWorkerStatusHandler returns the handler for POST /api/v1/jobs/{jobID}/status,
// the contract the external analysis worker reports through. The worker
// authenticates with the owning user's token, so the transition is rejected
// unless the caller owns the job.
func NewWorkerStatusHandler(svc AnalysisService) http.HandlerFunc {
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

		var req struct {
			Status models.JobStatus `json:"status"`
			Result json.RawMessage  `json:"result"`
			Error  *string          `json:"error"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		var opts []store.JobUpdateOption
		if req.Result != nil {
			opts = append(opts, store.WithResult(req.Result))
		}
		if req.Error != nil {
			opts = append(opts, store.WithError(*req.Error))
		}

		job, err := svc.UpdateStatus(r.Context(), jobID, userID, req.Status, opts...)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
			case errors.Is(err, jobs.ErrInvalidTransition):
				response.Error(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
			case errors.Is(err, jobs.ErrRetriesExhausted):
				response.Error(w, http.StatusConflict, "RETRIES_EXHAUSTED", err.Error(), nil)
			case errors.Is(err, jobs.ErrResultRequired), errors.Is(err, jobs.ErrErrorRequired):
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			default:
				writeAnalysisError(w, err)
			}
			return
		}
		response.JSON(w, newJobView(job))
	}
}

// NewStuckJobsHandler returns the handler for GET /api/v1/jobs/stuck.
func NewStuckJobsHandler(svc HealthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		stuck, err := svc.FindStuck(r.Context(), userID, timeoutFromQuery(r))
		if err != nil {
			writeAnalysisError(w, err)
			return
		}
		response.JSON(w, newStuckJobViews(stuck))
	}
}

// NewJobHealthHandler returns the handler for GET /api/v1/jobs/health.
func NewJobHealthHandler(svc HealthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		autoCancel := r.URL.Query().Get("auto_cancel") == "true"

		report, err := svc.CheckHealth(r.Context(), userID, timeoutFromQuery(r), autoCancel)
		if err != nil {
			writeAnalysisError(w, err)
			return
		}

		response.JSON(w, map[string]any{
			"health":          report.Status,
			"stats":           report.Stats,
			"stuck_jobs":      newStuckJobViews(report.StuckJobs),
			"cancelled_count": report.CancelledCount,
			"recommendations": report.Recommendations,
		})
	}
}

// NewAutoFixHandler returns the handler for POST /api/v1/jobs/autofix.
func NewAutoFixHandler(svc HealthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			TimeoutMinutes  int  `json:"timeout_minutes"`
			CancelStuckJobs bool `json:"cancel_stuck_jobs"`
			RetryFailedJobs bool `json:"retry_failed_jobs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		result, err := svc.AutoFix(r.Context(), userID, analysis.AutoFixOptions{
			Timeout:     time.Duration(req.TimeoutMinutes) * time.Minute,
			CancelStuck: req.CancelStuckJobs,
			RetryFailed: req.RetryFailedJobs,
		})
		if err != nil {
			writeAnalysisError(w, err)
			return
		}

		response.JSON(w, map[string]any{
			"results": map[string]any{
				"cancelled_jobs": result.CancelledJobs,
				"retried_jobs":   result.RetriedJobs,
			},
			"fixed_count": result.FixedCount,
		})
	}
}
