package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/repopulse/repopulse/internal/analysis"
	"github.com/repopulse/repopulse/pkg/models"
)

// jobView is the wire shape of a job. The payload is flattened into named
// fields; the stored access token never leaves the server.
type jobView struct {
	ID          uuid.UUID        `json:"id"`
	Type        models.JobType   `json:"type"`
	Status      models.JobStatus `json:"status"`
	ContextID   uuid.UUID        `json:"context_id"`
	ContextName string           `json:"context_name"`
	RepoURL     string           `json:"repo_url"`
	Branch      string           `json:"branch"`
	CommitSHA   string           `json:"commit_sha,omitempty"`
	Result      json.RawMessage  `json:"result,omitempty"`
	Error       *string          `json:"error,omitempty"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	CanRetry    bool             `json:"can_retry"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func newJobView(job *models.Job) jobView {
	v := jobView{
		ID:          job.ID,
		Type:        job.Type,
		Status:      job.Status,
		ContextID:   job.Payload.ContextID(),
		Result:      job.Result,
		Error:       job.Error,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		CanRetry:    job.CanRetry(),
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}

	switch p := job.Payload.(type) {
	case models.AnalyzeRepoPayload:
		v.ContextName, v.RepoURL, v.Branch = p.ContextName, p.RepoURL, p.Branch
	case models.AnalyzeCommitPayload:
		v.ContextName, v.RepoURL, v.Branch = p.ContextName, p.RepoURL, p.Branch
		v.CommitSHA = p.CommitSHA
	case models.GenerateDocsPayload:
		v.ContextName, v.RepoURL, v.Branch = p.ContextName, p.RepoURL, p.Branch
	}
	return v
}

func newJobViews(jobs []*models.Job) []jobView {
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, newJobView(job))
	}
	return views
}

type stuckJobView struct {
	Job               jobView `json:"job"`
	StuckDurationMins int     `json:"stuck_duration_minutes"`
}

func newStuckJobViews(stuck []analysis.StuckJob) []stuckJobView {
	views := make([]stuckJobView, 0, len(stuck))
	for _, sj := range stuck {
		views = append(views, stuckJobView{
			Job:               newJobView(sj.Job),
			StuckDurationMins: sj.StuckDurationMins,
		})
	}
	return views
}
