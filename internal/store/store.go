package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/repopulse/repopulse/pkg/models"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrValidation   = errors.New("validation failed")
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByGithubID(ctx context.Context, githubID int64) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)

	CreateContext(ctx context.Context, c *models.Context) error
	GetContext(ctx context.Context, id uuid.UUID) (*models.Context, error)
	ListContexts(ctx context.Context, userID uuid.UUID) ([]*models.Context, error)
	DeactivateContext(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	// CreateJobExclusive inserts the job unless an active job for the same
	// (context, type) already exists, in which case it returns that job and
	// created=false. The check and insert run under a per-context advisory
	// lock so two concurrent starts cannot both pass the dedup check.
	CreateJobExclusive(ctx context.Context, job *models.Job) (*models.Job, bool, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	FindJobsByType(ctx context.Context, t models.JobType) ([]*models.Job, error)
	FindJobsByStatus(ctx context.Context, s models.JobStatus) ([]*models.Job, error)
	FindActiveJobsByContext(ctx context.Context, contextID uuid.UUID) ([]*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) (*models.Job, error)
	// IncrementAttempts consumes one attempt: the job lands back on pending
	// while attempts < max_attempts and is forced to terminal failed once the
	// ceiling is reached, in a single atomic update.
	IncrementAttempts(ctx context.Context, id uuid.UUID) (*models.Job, error)
	FindStuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.Job, error)
	JobStatusCounts(ctx context.Context) (map[models.JobStatus]int, error)
}

type jobUpdateParams struct {
	Result json.RawMessage
	Error  *string
}

type JobUpdateOption func(*jobUpdateParams)

// WithResult attaches the worker-produced result. Only honored on the
// transition to completed.
func WithResult(result json.RawMessage) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Result = result
	}
}

// WithError attaches a failure message or cancellation reason.
func WithError(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Error = &msg
	}
}

// InspectedOptions is the resolved effect of a set of JobUpdateOptions,
// exposed so store fakes can replay them.
type InspectedOptions struct {
	Result json.RawMessage
	Error  *string
}

// InspectOptions applies the options and returns their resolved fields.
func InspectOptions(opts []JobUpdateOption) InspectedOptions {
	p := &jobUpdateParams{}
	for _, opt := range opts {
		opt(p)
	}
	return InspectedOptions{Result: p.Result, Error: p.Error}
}
