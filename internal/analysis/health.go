package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/repopulse/repopulse/pkg/models"
)

// DefaultStuckTimeout is the staleness window after which a non-terminal
// job counts as stuck.
const DefaultStuckTimeout = 30 * time.Minute

// HealthStatus of a sweep: healthy when nothing is stuck, warning
// otherwise. The check itself never reports an error status.
type HealthStatus string

const (
	HealthStatusHealthy HealthStatus = "healthy"
	HealthStatusWarning HealthStatus = "warning"
)

// StuckJob pairs a stale job with how long it has been stuck.
type StuckJob struct {
	Job               *models.Job `json:"job"`
	StuckDurationMins int         `json:"stuck_duration_minutes"`
}

// HealthReport is the outcome of a CheckHealth sweep.
type HealthReport struct {
	Status          HealthStatus `json:"status"`
	Stats           *Stats       `json:"stats"`
	StuckJobs       []StuckJob   `json:"stuck_jobs"`
	CancelledCount  int          `json:"cancelled_count"`
	Recommendations []string     `json:"recommendations"`
}

// AutoFixOptions selects which recovery paths AutoFix runs.
type AutoFixOptions struct {
	Timeout     time.Duration
	CancelStuck bool
	RetryFailed bool
}

// AutoFixResult reports what AutoFix did.
type AutoFixResult struct {
	CancelledJobs []uuid.UUID `json:"cancelled_jobs"`
	RetriedJobs   []uuid.UUID `json:"retried_jobs"`
	FixedCount    int         `json:"fixed_count"`
}

// Monitor detects and recovers stuck jobs.
type Monitor struct {
	orchestrator *Orchestrator
	aggregator   *Aggregator
}

// NewMonitor creates a new health Monitor.
func NewMonitor(o *Orchestrator, a *Aggregator) *Monitor {
	return &Monitor{orchestrator: o, aggregator: a}
}

// FindStuck returns the caller's jobs that have sat in a non-terminal
// status longer than the timeout, with their staleness in minutes.
func (m *Monitor) FindStuck(ctx context.Context, userID uuid.UUID, timeout time.Duration) ([]StuckJob, error) {
	if timeout <= 0 {
		timeout = DefaultStuckTimeout
	}
	jobs, err := m.orchestrator.store.FindStuckJobs(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("finding stuck jobs: %w", err)
	}

	now := time.Now().UTC()
	var stuck []StuckJob
	for _, job := range jobs {
		if job.Payload.UserID() != userID {
			continue
		}
		stuck = append(stuck, StuckJob{
			Job:               job,
			StuckDurationMins: int(now.Sub(job.UpdatedAt).Minutes()),
		})
	}
	return stuck, nil
}

// CheckHealth sweeps for the caller's stuck jobs, optionally auto-cancels
// them, and returns stats with recommendations. Individual cancellation
// failures are logged and skipped, never aborting the sweep.
func (m *Monitor) CheckHealth(ctx context.Context, userID uuid.UUID, timeout time.Duration, autoCancel bool) (*HealthReport, error) {
	if timeout <= 0 {
		timeout = DefaultStuckTimeout
	}

	stuck, err := m.FindStuck(ctx, userID, timeout)
	if err != nil {
		return nil, err
	}

	cancelled := 0
	if autoCancel {
		reason := stuckCancelReason(timeout)
		for _, sj := range stuck {
			n, err := m.orchestrator.Cancel(ctx, CancelParams{JobID: &sj.Job.ID, Reason: reason}, userID)
			if err != nil {
				slog.Error("auto-cancel failed, skipping", "job_id", sj.Job.ID, "error", err)
				continue
			}
			cancelled += n
		}
	}

	stats, err := m.aggregator.JobStats(ctx)
	if err != nil {
		return nil, err
	}

	status := HealthStatusHealthy
	if len(stuck) > 0 {
		status = HealthStatusWarning
	}

	return &HealthReport{
		Status:          status,
		Stats:           stats,
		StuckJobs:       stuck,
		CancelledCount:  cancelled,
		Recommendations: Recommendations(stats, len(stuck)),
	}, nil
}

// AutoFix composes stuck-job cancellation and failed-job retries. Each path
// is counted independently; per-job failures are logged and skipped.
func (m *Monitor) AutoFix(ctx context.Context, userID uuid.UUID, opts AutoFixOptions) (*AutoFixResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStuckTimeout
	}
	result := &AutoFixResult{
		CancelledJobs: []uuid.UUID{},
		RetriedJobs:   []uuid.UUID{},
	}

	if opts.CancelStuck {
		stuck, err := m.FindStuck(ctx, userID, opts.Timeout)
		if err != nil {
			return nil, err
		}
		reason := stuckCancelReason(opts.Timeout)
		for _, sj := range stuck {
			n, err := m.orchestrator.Cancel(ctx, CancelParams{JobID: &sj.Job.ID, Reason: reason}, userID)
			if err != nil || n == 0 {
				slog.Error("auto-fix cancel failed, skipping", "job_id", sj.Job.ID, "error", err)
				continue
			}
			result.CancelledJobs = append(result.CancelledJobs, sj.Job.ID)
		}
	}

	if opts.RetryFailed {
		failed, err := m.orchestrator.store.FindJobsByStatus(ctx, models.JobStatusFailed)
		if err != nil {
			return nil, fmt.Errorf("finding failed jobs: %w", err)
		}
		for _, job := range failed {
			if job.Payload.UserID() != userID || !job.CanRetry() {
				continue
			}
			if _, err := m.orchestrator.Retry(ctx, job.ID, userID); err != nil {
				slog.Error("auto-fix retry failed, skipping", "job_id", job.ID, "error", err)
				continue
			}
			result.RetriedJobs = append(result.RetriedJobs, job.ID)
		}
	}

	result.FixedCount = len(result.CancelledJobs) + len(result.RetriedJobs)
	slog.Info("auto-fix complete", "user_id", userID,
		"cancelled", len(result.CancelledJobs), "retried", len(result.RetriedJobs))
	return result, nil
}

func stuckCancelReason(timeout time.Duration) string {
	return fmt.Sprintf("automatically cancelled: job stuck for more than %d minutes", int(timeout.Minutes()))
}
