package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a Job. The literal values are part of
// the wire contract and must not change.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state. Terminal jobs are
// never mutated again; termination is a status value, not a row removal.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IsActive reports whether the job still counts against the
// one-active-job-per-context rule.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// JobType is the enumerated kind of work a Job represents.
type JobType string

const (
	JobTypeAnalyzeRepo   JobType = "analyze_repo"
	JobTypeAnalyzeCommit JobType = "analyze_commit"
	JobTypeGenerateDocs  JobType = "generate_docs"
)

// DefaultMaxAttempts is the retry ceiling fixed at job creation.
const DefaultMaxAttempts = 3

// Job tracks one asynchronous analysis task. The API returns a job id on
// POST /api/v1/analysis; clients poll GET /api/v1/analysis/jobs/{id} until
// the status is terminal. The external worker advances the status via
// POST /api/v1/jobs/{id}/status.
type Job struct {
	ID          uuid.UUID       `db:"id"           json:"id"`
	Type        JobType         `db:"type"         json:"type"`
	Status      JobStatus       `db:"status"       json:"status"`
	Payload     JobPayload      `db:"payload"      json:"payload"`
	Result      json.RawMessage `db:"result"       json:"result,omitempty"`
	Error       *string         `db:"error"        json:"error,omitempty"`
	Attempts    int             `db:"attempts"     json:"attempts"`
	MaxAttempts int             `db:"max_attempts" json:"max_attempts"`
	CreatedAt   time.Time       `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"   json:"updated_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// CanRetry reports whether a failed job is still eligible for a retry.
func (j *Job) CanRetry() bool {
	return j.Status == JobStatusFailed && j.Attempts < j.MaxAttempts
}

// JobPayload is the typed payload carried by a Job. Each job type has its
// own variant; the common accessors anchor authorization (UserID) and
// deduplication (ContextID).
type JobPayload interface {
	UserID() uuid.UUID
	ContextID() uuid.UUID
}

// AnalyzeRepoPayload is the payload for analyze_repo jobs.
type AnalyzeRepoPayload struct {
	Context     uuid.UUID `json:"context_id"`
	User        uuid.UUID `json:"user_id"`
	RepoURL     string    `json:"repo_url"`
	Branch      string    `json:"branch"`
	ContextName string    `json:"context_name"`
	AccessToken string    `json:"access_token,omitempty"`
}

func (p AnalyzeRepoPayload) UserID() uuid.UUID    { return p.User }
func (p AnalyzeRepoPayload) ContextID() uuid.UUID { return p.Context }

// AnalyzeCommitPayload is the payload for analyze_commit jobs.
type AnalyzeCommitPayload struct {
	Context     uuid.UUID `json:"context_id"`
	User        uuid.UUID `json:"user_id"`
	RepoURL     string    `json:"repo_url"`
	Branch      string    `json:"branch"`
	ContextName string    `json:"context_name"`
	CommitSHA   string    `json:"commit_sha"`
	AccessToken string    `json:"access_token,omitempty"`
}

func (p AnalyzeCommitPayload) UserID() uuid.UUID    { return p.User }
func (p AnalyzeCommitPayload) ContextID() uuid.UUID { return p.Context }

// GenerateDocsPayload is the payload for generate_docs jobs.
type GenerateDocsPayload struct {
	Context     uuid.UUID `json:"context_id"`
	User        uuid.UUID `json:"user_id"`
	RepoURL     string    `json:"repo_url"`
	Branch      string    `json:"branch"`
	ContextName string    `json:"context_name"`
	AccessToken string    `json:"access_token,omitempty"`
}

func (p GenerateDocsPayload) UserID() uuid.UUID    { return p.User }
func (p GenerateDocsPayload) ContextID() uuid.UUID { return p.Context }

// UnmarshalPayload decodes a raw payload into the variant for the given
// job type.
func UnmarshalPayload(t JobType, data []byte) (JobPayload, error) {
	switch t {
	case JobTypeAnalyzeRepo:
		var p AnalyzeRepoPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode analyze_repo payload: %w", err)
		}
		return p, nil
	case JobTypeAnalyzeCommit:
		var p AnalyzeCommitPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode analyze_commit payload: %w", err)
		}
		return p, nil
	case JobTypeGenerateDocs:
		var p GenerateDocsPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode generate_docs payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", t)
	}
}

// MarshalPayload encodes a payload variant for storage.
func MarshalPayload(p JobPayload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
