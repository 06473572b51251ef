package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/repopulse/repopulse/internal/analysis"
	mw "github.com/repopulse/repopulse/internal/api/middleware"
	"github.com/repopulse/repopulse/internal/jobs"
	"github.com/repopulse/repopulse/internal/store"
	"github.com/repopulse/repopulse/pkg/models"
)

// --- mock HealthService ---

type mockHealthService struct {
	findStuckFn   func(ctx context.Context, userID uuid.UUID, timeout time.Duration) ([]analysis.StuckJob, error)
	checkHealthFn func(ctx context.Context, userID uuid.UUID, timeout time.Duration, autoCancel bool) (*analysis.HealthReport, error)
	autoFixFn     func(ctx context.Context, userID uuid.UUID, opts analysis.AutoFixOptions) (*analysis.AutoFixResult, error)
}

func (m *mockHealthService) FindStuck(ctx context.Context, userID uuid.UUID, timeout time.Duration) ([]analysis.StuckJob, error) {
	return m.findStuckFn(ctx, userID, timeout)
}

func (m *mockHealthService) CheckHealth(ctx context.Context, userID uuid.UUID, timeout time.Duration, autoCancel bool) (*analysis.HealthReport, error) {
	return m.checkHealthFn(ctx, userID, timeout, autoCancel)
}

func (m *mockHealthService) AutoFix(ctx context.Context, userID uuid.UUID, opts analysis.AutoFixOptions) (*analysis.AutoFixResult, error) {
	return m.autoFixFn(ctx, userID, opts)
}

// --- Worker status tests ---

func TestWorkerStatusHandler_Processing(t *testing.T) {
	userID := uuid.New()
	job := sampleJob(userID, models.JobStatusProcessing)
	mock := &mockAnalysisService{
		updateFn: func(_ context.Context, _, callerID uuid.UUID, status models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error) {
			if callerID != userID {
				t.Errorf("expected caller %s, got %s", userID, callerID)
			}
			if status != models.JobStatusProcessing {
				t.Errorf("expected processing, got %s", status)
			}
			if len(opts) != 0 {
				t.Errorf("expected no options, got %d", len(opts))
			}
			return job, nil
		},
	}

	h := NewWorkerStatusHandler(mock)
	rec := httptest.NewRecorder()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/status",
		map[string]any{"status": "processing"}, userID)
	h.ServeHTTP(rec, withURLParam(r, "jobID", job.ID.String()))

	data := parseData(t, rec, http.StatusOK)
	if data["status"] != "processing" {
		t.Errorf("unexpected status: %v", data["status"])
	}
}

func TestWorkerStatusHandler_CompletedWithResult(t *testing.T) {
	userID := uuid.New()
	job := sampleJob(userID, models.JobStatusCompleted)
	job.Result = json.RawMessage(`{"files_analyzed": 12}`)

	var gotOpts store.InspectedOptions
	mock := &mockAnalysisService{
		updateFn: func(_ context.Context, _, _ uuid.UUID, _ models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error) {
			gotOpts = store.InspectOptions(opts)
			return job, nil
		},
	}

	h := NewWorkerStatusHandler(mock)
	rec := httptest.NewRecorder()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/status",
		map[string]any{"status": "completed", "result": map[string]any{"files_analyzed": 12}}, userID)
	h.ServeHTTP(rec, withURLParam(r, "jobID", job.ID.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotOpts.Result == nil {
		t.Error("expected result option to be passed through")
	}
	if gotOpts.Error != nil {
		t.Errorf("unexpected error option: %v", *gotOpts.Error)
	}
}

func TestWorkerStatusHandler_FailedWithError(t *testing.T) {
	userID := uuid.New()
	job := sampleJob(userID, models.JobStatusFailed)

	var gotOpts store.InspectedOptions
	mock := &mockAnalysisService{
		updateFn: func(_ context.Context, _, _ uuid.UUID, _ models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error) {
			gotOpts = store.InspectOptions(opts)
			return job, nil
		},
	}

	h := NewWorkerStatusHandler(mock)
	rec := httptest.NewRecorder()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/status",
		map[string]any{"status": "failed", "error": "clone timed out"}, userID)
	h.ServeHTTP(rec, withURLParam(r, "jobID", job.ID.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotOpts.Error == nil || *gotOpts.Error != "clone timed out" {
		t.Errorf("error option not passed through: %v", gotOpts.Error)
	}
}

func TestWorkerStatusHandler_InvalidTransition(t *testing.T) {
	mock := &mockAnalysisService{
		updateFn: func(_ context.Context, _, _ uuid.UUID, _ models.JobStatus, _ ...store.JobUpdateOption) (*models.Job, error) {
			return nil, jobs.ErrInvalidTransition
		},
	}

	h := NewWorkerStatusHandler(mock)
	rec := httptest.NewRecorder()
	id := uuid.NewString()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/"+id+"/status",
		map[string]any{"status": "completed"}, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", id))

	status, code := parseErr(t, rec)
	if status != http.StatusConflict {
		t.Errorf("expected 409, got %d", status)
	}
	if code != "INVALID_TRANSITION" {
		t.Errorf("expected INVALID_TRANSITION, got %s", code)
	}
}

func TestWorkerStatusHandler_ResultRequired(t *testing.T) {
	mock := &mockAnalysisService{
		updateFn: func(_ context.Context, _, _ uuid.UUID, _ models.JobStatus, _ ...store.JobUpdateOption) (*models.Job, error) {
			return nil, jobs.ErrResultRequired
		},
	}

	h := NewWorkerStatusHandler(mock)
	rec := httptest.NewRecorder()
	id := uuid.NewString()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/"+id+"/status",
		map[string]any{"status": "completed"}, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", id))

	status, code := parseErr(t, rec)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
	if code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
}

func TestWorkerStatusHandler_NotFound(t *testing.T) {
	mock := &mockAnalysisService{
		updateFn: func(_ context.Context, _, _ uuid.UUID, _ models.JobStatus, _ ...store.JobUpdateOption) (*models.Job, error) {
			return nil, store.ErrNotFound
		},
	}

	h := NewWorkerStatusHandler(mock)
	rec := httptest.NewRecorder()
	id := uuid.NewString()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/"+id+"/status",
		map[string]any{"status": "processing"}, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", id))

	status, code := parseErr(t, rec)
	if status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	if code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %s", code)
	}
}

func TestWorkerStatusHandler_NoUser(t *testing.T) {
	h := NewWorkerStatusHandler(&mockAnalysisService{})
	rec := httptest.NewRecorder()
	id := uuid.NewString()

	body, _ := json.Marshal(map[string]any{"status": "processing"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+id+"/status", bytes.NewReader(body))
	h.ServeHTTP(rec, withURLParam(r, "jobID", id))

	status, code := parseErr(t, rec)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", status)
	}
	if code != "INVALID_TOKEN" {
		t.Errorf("expected INVALID_TOKEN, got %s", code)
	}
}

func TestWorkerStatusHandler_NonOwnerForbidden(t *testing.T) {
	mock := &mockAnalysisService{
		updateFn: func(_ context.Context, _, _ uuid.UUID, _ models.JobStatus, _ ...store.JobUpdateOption) (*models.Job, error) {
			return nil, analysis.ErrForbidden
		},
	}

	h := NewWorkerStatusHandler(mock)
	rec := httptest.NewRecorder()
	id := uuid.NewString()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/"+id+"/status",
		map[string]any{"status": "processing"}, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", id))

	status, code := parseErr(t, rec)
	if status != http.StatusForbidden {
		t.Errorf("expected 403, got %d", status)
	}
	if code != "FORBIDDEN" {
		t.Errorf("expected FORBIDDEN, got %s", code)
	}
}

func TestWorkerStatusHandler_RetriesExhausted(t *testing.T) {
	mock := &mockAnalysisService{
		updateFn: func(_ context.Context, _, _ uuid.UUID, _ models.JobStatus, _ ...store.JobUpdateOption) (*models.Job, error) {
			return nil, jobs.ErrRetriesExhausted
		},
	}

	h := NewWorkerStatusHandler(mock)
	rec := httptest.NewRecorder()
	id := uuid.NewString()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/"+id+"/status",
		map[string]any{"status": "pending"}, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", id))

	status, code := parseErr(t, rec)
	if status != http.StatusConflict {
		t.Errorf("expected 409, got %d", status)
	}
	if code != "RETRIES_EXHAUSTED" {
		t.Errorf("expected RETRIES_EXHAUSTED, got %s", code)
	}
}

func TestWorkerStatusHandler_BadJobID(t *testing.T) {
	h := NewWorkerStatusHandler(&mockAnalysisService{})
	rec := httptest.NewRecorder()
	r := authedReq(t, http.MethodPost, "/api/v1/jobs/nope/status",
		map[string]any{"status": "processing"}, uuid.New())
	h.ServeHTTP(rec, withURLParam(r, "jobID", "nope"))

	status, _ := parseErr(t, rec)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
}

// --- Stuck jobs tests ---

func TestStuckJobsHandler_DefaultTimeout(t *testing.T) {
	userID := uuid.New()
	var gotTimeout time.Duration
	mock := &mockHealthService{
		findStuckFn: func(_ context.Context, _ uuid.UUID, timeout time.Duration) ([]analysis.StuckJob, error) {
			gotTimeout = timeout
			return []analysis.StuckJob{
				{Job: sampleJob(userID, models.JobStatusProcessing), StuckDurationMins: 42},
			}, nil
		},
	}

	h := NewStuckJobsHandler(mock)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(t, http.MethodGet, "/api/v1/jobs/stuck", nil, userID))

	data := parseDataList(t, rec)
	if gotTimeout != 30*time.Minute {
		t.Errorf("expected default 30m timeout, got %s", gotTimeout)
	}
	if len(data) != 1 {
		t.Fatalf("expected 1 stuck job, got %d", len(data))
	}
	entry := data[0].(map[string]any)
	if int(entry["stuck_duration_minutes"].(float64)) != 42 {
		t.Errorf("unexpected stuck duration: %v", entry["stuck_duration_minutes"])
	}
}

func TestStuckJobsHandler_CustomTimeout(t *testing.T) {
	var gotTimeout time.Duration
	mock := &mockHealthService{
		findStuckFn: func(_ context.Context, _ uuid.UUID, timeout time.Duration) ([]analysis.StuckJob, error) {
			gotTimeout = timeout
			return nil, nil
		},
	}

	h := NewStuckJobsHandler(mock)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(t, http.MethodGet, "/api/v1/jobs/stuck?timeout_minutes=45", nil, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotTimeout != 45*time.Minute {
		t.Errorf("expected 45m timeout, got %s", gotTimeout)
	}
}

func TestStuckJobsHandler_InvalidTimeoutFallsBack(t *testing.T) {
	var gotTimeout time.Duration
	mock := &mockHealthService{
		findStuckFn: func(_ context.Context, _ uuid.UUID, timeout time.Duration) ([]analysis.StuckJob, error) {
			gotTimeout = timeout
			return nil, nil
		},
	}

	h := NewStuckJobsHandler(mock)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(t, http.MethodGet, "/api/v1/jobs/stuck?timeout_minutes=-5", nil, uuid.New()))

	if gotTimeout != 30*time.Minute {
		t.Errorf("expected fallback to 30m, got %s", gotTimeout)
	}
}

// --- Health tests ---

func TestJobHealthHandler(t *testing.T) {
	userID := uuid.New()
	var gotAutoCancel bool
	mock := &mockHealthService{
		checkHealthFn: func(_ context.Context, _ uuid.UUID, _ time.Duration, autoCancel bool) (*analysis.HealthReport, error) {
			gotAutoCancel = autoCancel
			return &analysis.HealthReport{
				Status: analysis.HealthStatusWarning,
				Stats:  &analysis.Stats{Processing: 1, Total: 1},
				StuckJobs: []analysis.StuckJob{
					{Job: sampleJob(userID, models.JobStatusProcessing), StuckDurationMins: 35},
				},
				CancelledCount:  1,
				Recommendations: []string{"You have 1 stuck jobs, consider cancelling them."},
			}, nil
		},
	}

	h := NewJobHealthHandler(mock)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(t, http.MethodGet, "/api/v1/jobs/health?auto_cancel=true", nil, userID))

	data := parseData(t, rec, http.StatusOK)
	if !gotAutoCancel {
		t.Error("auto_cancel=true not passed through")
	}
	if data["health"] != "warning" {
		t.Errorf("unexpected health: %v", data["health"])
	}
	if int(data["cancelled_count"].(float64)) != 1 {
		t.Errorf("unexpected cancelled_count: %v", data["cancelled_count"])
	}
	stats := data["stats"].(map[string]any)
	if int(stats["processing"].(float64)) != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
	recs := data["recommendations"].([]any)
	if len(recs) != 1 {
		t.Errorf("expected 1 recommendation, got %d", len(recs))
	}
}

func TestJobHealthHandler_NoUser(t *testing.T) {
	h := NewJobHealthHandler(&mockHealthService{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/health", nil))

	status, code := parseErr(t, rec)
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", status)
	}
	if code != "INVALID_TOKEN" {
		t.Errorf("expected INVALID_TOKEN, got %s", code)
	}
}

// --- AutoFix tests ---

func TestAutoFixHandler(t *testing.T) {
	cancelledID := uuid.New()
	retriedID := uuid.New()
	var gotOpts analysis.AutoFixOptions
	mock := &mockHealthService{
		autoFixFn: func(_ context.Context, _ uuid.UUID, opts analysis.AutoFixOptions) (*analysis.AutoFixResult, error) {
			gotOpts = opts
			return &analysis.AutoFixResult{
				CancelledJobs: []uuid.UUID{cancelledID},
				RetriedJobs:   []uuid.UUID{retriedID},
				FixedCount:    2,
			}, nil
		},
	}

	h := NewAutoFixHandler(mock)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(t, http.MethodPost, "/api/v1/jobs/autofix", map[string]any{
		"timeout_minutes":   45,
		"cancel_stuck_jobs": true,
		"retry_failed_jobs": true,
	}, uuid.New()))

	data := parseData(t, rec, http.StatusOK)
	if gotOpts.Timeout != 45*time.Minute {
		t.Errorf("expected 45m timeout, got %s", gotOpts.Timeout)
	}
	if !gotOpts.CancelStuck || !gotOpts.RetryFailed {
		t.Errorf("options not passed through: %+v", gotOpts)
	}
	if int(data["fixed_count"].(float64)) != 2 {
		t.Errorf("unexpected fixed_count: %v", data["fixed_count"])
	}
	results := data["results"].(map[string]any)
	cancelled := results["cancelled_jobs"].([]any)
	if len(cancelled) != 1 || cancelled[0] != cancelledID.String() {
		t.Errorf("unexpected cancelled_jobs: %v", cancelled)
	}
	retried := results["retried_jobs"].([]any)
	if len(retried) != 1 || retried[0] != retriedID.String() {
		t.Errorf("unexpected retried_jobs: %v", retried)
	}
}

func TestAutoFixHandler_InvalidJSON(t *testing.T) {
	h := NewAutoFixHandler(&mockHealthService{})
	rec := httptest.NewRecorder()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/autofix", bytes.NewReader([]byte("{invalid")))
	r = r.WithContext(mw.SetUserID(r.Context(), uuid.New()))
	h.ServeHTTP(rec, r)

	status, _ := parseErr(t, rec)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
}
