// Package analysis is the domain layer on top of the job lifecycle: it
// starts and cancels analysis jobs, enforces at-most-one-active-job per
// context, and drives stuck-job recovery.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/repopulse/repopulse/internal/auth"
	"github.com/repopulse/repopulse/internal/cache"
	"github.com/repopulse/repopulse/internal/store"
	"github.com/repopulse/repopulse/pkg/models"
)

// Sentinel errors for domain failures.
var (
	ErrForbidden       = errors.New("caller does not own this resource")
	ErrContextInactive = errors.New("context is not active")
	ErrNoTarget        = errors.New("either job_id or context_id is required")
)

const (
	jobStatusCacheTTL = 30 * time.Minute
	// estimatedDuration is the human-facing figure returned on start; the
	// worker is outside this process so it cannot be computed.
	estimatedDuration = "2-5 minutes"
)

// Orchestrator starts, lists, and cancels analysis jobs.
type Orchestrator struct {
	store       store.Store
	cache       cache.Cache
	cipher      *auth.TokenCipher
	maxAttempts int
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(st store.Store, ca cache.Cache, cipher *auth.TokenCipher, maxAttempts int) *Orchestrator {
	if maxAttempts < 1 {
		maxAttempts = models.DefaultMaxAttempts
	}
	return &Orchestrator{store: st, cache: ca, cipher: cipher, maxAttempts: maxAttempts}
}

// StartResult is the outcome of StartAnalysis.
type StartResult struct {
	JobID         uuid.UUID        `json:"job_id"`
	Status        models.JobStatus `json:"status"`
	ContextID     uuid.UUID        `json:"context_id"`
	ContextName   string           `json:"context_name"`
	RepoURL       string           `json:"repo_url"`
	EstimatedTime string           `json:"estimated_time"`
	Deduplicated  bool             `json:"deduplicated"`
}

// StartAnalysis creates a pending analyze_repo job for the context, or
// returns the already-active job when one exists. The caller must own the
// context.
func (o *Orchestrator) StartAnalysis(ctx context.Context, contextID, userID uuid.UUID, accessToken string) (*StartResult, error) {
	c, err := o.store.GetContext(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrForbidden
	}
	if !c.IsActive {
		return nil, ErrContextInactive
	}

	sealedToken := accessToken
	if o.cipher != nil {
		sealedToken, err = o.cipher.Seal(accessToken)
		if err != nil {
			return nil, fmt.Errorf("seal access token: %w", err)
		}
	}

	branch := c.Branch
	if branch == "" {
		branch = "main"
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:     uuid.New(),
		Type:   models.JobTypeAnalyzeRepo,
		Status: models.JobStatusPending,
		Payload: models.AnalyzeRepoPayload{
			Context:     contextID,
			User:        userID,
			RepoURL:     c.RepoURL,
			Branch:      branch,
			ContextName: c.Name,
			AccessToken: sealedToken,
		},
		Attempts:    0,
		MaxAttempts: o.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	job, created, err := o.store.CreateJobExclusive(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	if created {
		_ = o.cache.SetJobStatus(ctx, job.ID, string(job.Status), jobStatusCacheTTL)
		slog.Info("analysis started", "job_id", job.ID, "context_id", contextID, "user_id", userID)
	} else {
		slog.Info("analysis dedup hit", "job_id", job.ID, "context_id", contextID)
	}

	return &StartResult{
		JobID:         job.ID,
		Status:        job.Status,
		ContextID:     contextID,
		ContextName:   c.Name,
		RepoURL:       c.RepoURL,
		EstimatedTime: estimatedDuration,
		Deduplicated:  !created,
	}, nil
}

// CancelParams selects the jobs to cancel: a single job by id, or every
// non-terminal job of a context.
type CancelParams struct {
	JobID     *uuid.UUID
	ContextID *uuid.UUID
	Reason    string
}

// Cancel cancels jobs owned by the caller and returns how many were
// actually cancelled. Cancelling an already-terminal job by id is a no-op
// reported as zero.
func (o *Orchestrator) Cancel(ctx context.Context, params CancelParams, callerID uuid.UUID) (int, error) {
	switch {
	case params.JobID != nil:
		return o.cancelByJobID(ctx, *params.JobID, params.Reason, callerID)
	case params.ContextID != nil:
		return o.cancelByContext(ctx, *params.ContextID, params.Reason, callerID)
	default:
		return 0, ErrNoTarget
	}
}

func (o *Orchestrator) cancelByJobID(ctx context.Context, jobID uuid.UUID, reason string, callerID uuid.UUID) (int, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if job.Payload.UserID() != callerID {
		return 0, ErrForbidden
	}
	if job.Status.IsTerminal() {
		return 0, nil
	}

	if _, err := o.store.UpdateJobStatus(ctx, jobID, models.JobStatusCancelled, store.WithError(reason)); err != nil {
		return 0, fmt.Errorf("cancelling job: %w", err)
	}
	_ = o.cache.SetJobStatus(ctx, jobID, string(models.JobStatusCancelled), jobStatusCacheTTL)
	slog.Info("job cancelled", "job_id", jobID, "reason", reason)
	return 1, nil
}

func (o *Orchestrator) cancelByContext(ctx context.Context, contextID uuid.UUID, reason string, callerID uuid.UUID) (int, error) {
	active, err := o.store.FindActiveJobsByContext(ctx, contextID)
	if err != nil {
		return 0, fmt.Errorf("finding active jobs: %w", err)
	}

	cancelled := 0
	for _, job := range active {
		if job.Payload.UserID() != callerID {
			continue
		}
		if _, err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCancelled, store.WithError(reason)); err != nil {
			slog.Error("cancel failed, skipping", "job_id", job.ID, "error", err)
			continue
		}
		_ = o.cache.SetJobStatus(ctx, job.ID, string(models.JobStatusCancelled), jobStatusCacheTTL)
		cancelled++
	}
	slog.Info("context jobs cancelled", "context_id", contextID, "count", cancelled)
	return cancelled, nil
}

// JobsForUser returns the caller's analyze_repo jobs, newest first.
func (o *Orchestrator) JobsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Job, error) {
	all, err := o.store.FindJobsByType(ctx, models.JobTypeAnalyzeRepo)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	var mine []*models.Job
	for _, job := range all {
		if job.Payload.UserID() == userID {
			mine = append(mine, job)
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		return mine[i].CreatedAt.After(mine[j].CreatedAt)
	})
	return mine, nil
}

// GetJob loads a single job owned by the caller.
func (o *Orchestrator) GetJob(ctx context.Context, jobID, callerID uuid.UUID) (*models.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Payload.UserID() != callerID {
		return nil, ErrForbidden
	}
	return job, nil
}

// UpdateStatus is the worker-facing status transition: processing on claim,
// completed with a result, failed with an error. Like every other mutation
// it is scoped to the caller: the worker reports on behalf of the user whose
// token it carries, so callerID must match the job payload's owner.
func (o *Orchestrator) UpdateStatus(ctx context.Context, jobID, callerID uuid.UUID, status models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Payload.UserID() != callerID {
		return nil, ErrForbidden
	}

	updated, err := o.store.UpdateJobStatus(ctx, jobID, status, opts...)
	if err != nil {
		return nil, err
	}
	_ = o.cache.SetJobStatus(ctx, jobID, string(updated.Status), jobStatusCacheTTL)
	return updated, nil
}

// Retry consumes an attempt on a failed job, re-queueing it as pending
// while attempts remain, forcing terminal failed otherwise.
func (o *Orchestrator) Retry(ctx context.Context, jobID, callerID uuid.UUID) (*models.Job, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Payload.UserID() != callerID {
		return nil, ErrForbidden
	}
	if !job.CanRetry() {
		return nil, fmt.Errorf("job %s cannot be retried (status=%s attempts=%d/%d)",
			jobID, job.Status, job.Attempts, job.MaxAttempts)
	}
	updated, err := o.store.IncrementAttempts(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("retrying job: %w", err)
	}
	_ = o.cache.SetJobStatus(ctx, jobID, string(updated.Status), jobStatusCacheTTL)
	return updated, nil
}
