package analysis_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/repopulse/repopulse/internal/jobs"
	"github.com/repopulse/repopulse/internal/store"
	"github.com/repopulse/repopulse/pkg/models"
)

// fakeStore is an in-memory store.Store mirroring the Postgres semantics
// the analysis layer relies on: transition validation, terminal stamping,
// and the attempt-ceiling rule.
type fakeStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	contexts map[uuid.UUID]*models.Context
	jobs     map[uuid.UUID]*models.Job

	failUpdateFor map[uuid.UUID]error // inject per-job update failures
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[uuid.UUID]*models.User),
		contexts:      make(map[uuid.UUID]*models.Context),
		jobs:          make(map[uuid.UUID]*models.Job),
		failUpdateFor: make(map[uuid.UUID]error),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) CreateUser(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) FindUserByGithubID(ctx context.Context, githubID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.GithubID == githubID {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.GithubID == u.GithubID {
			existing.Login = u.Login
			existing.Email = u.Email
			return existing, nil
		}
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) CreateContext(ctx context.Context, c *models.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts[c.ID] = c
	return nil
}

func (f *fakeStore) GetContext(ctx context.Context, id uuid.UUID) (*models.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contexts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ListContexts(ctx context.Context, userID uuid.UUID) ([]*models.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Context
	for _, c := range f.contexts {
		if c.UserID == userID && c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) DeactivateContext(ctx context.Context, id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contexts[id]
	if !ok || c.UserID != userID || !c.IsActive {
		return store.ErrNotFound
	}
	c.IsActive = false
	return nil
}

func (f *fakeStore) CreateJob(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeStore) CreateJobExclusive(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.jobs {
		if existing.Type == job.Type &&
			existing.Payload.ContextID() == job.Payload.ContextID() &&
			existing.Status.IsActive() {
			return existing, false, nil
		}
	}
	f.jobs[job.ID] = job
	return job, true, nil
}

func (f *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) FindJobsByType(ctx context.Context, t models.JobType) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Job
	for _, job := range f.jobs {
		if job.Type == t {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeStore) FindJobsByStatus(ctx context.Context, s models.JobStatus) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Job
	for _, job := range f.jobs {
		if job.Status == s {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeStore) FindActiveJobsByContext(ctx context.Context, contextID uuid.UUID) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Job
	for _, job := range f.jobs {
		if job.Payload.ContextID() == contextID && job.Status.IsActive() {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...store.JobUpdateOption) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failUpdateFor[id]; ok {
		return nil, err
	}

	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	params := applyOpts(opts)
	if err := jobs.ValidateTransition(job.Status, status, params.result != nil, params.errMsg != nil, job.Attempts, job.MaxAttempts); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	if status.IsTerminal() {
		job.CompletedAt = &now
	}
	if status == models.JobStatusCompleted && params.result != nil {
		job.Result = params.result
	}
	if (status == models.JobStatusFailed || status == models.JobStatusCancelled) && params.errMsg != nil {
		job.Error = params.errMsg
	}
	return job, nil
}

func (f *fakeStore) IncrementAttempts(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	now := time.Now().UTC()
	job.Attempts++
	job.UpdatedAt = now
	if job.Attempts >= job.MaxAttempts {
		job.Status = models.JobStatusFailed
		job.CompletedAt = &now
	} else {
		job.Status = models.JobStatusPending
		job.CompletedAt = nil
	}
	return job, nil
}

func (f *fakeStore) FindStuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []*models.Job
	for _, job := range f.jobs {
		if job.Status.IsActive() && job.UpdatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *fakeStore) JobStatusCounts(ctx context.Context) (map[models.JobStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.JobStatus]int)
	for _, job := range f.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

type updateParams struct {
	result []byte
	errMsg *string
}

// applyOpts converts store.JobUpdateOption values back into plain fields
// through the public option API.
func applyOpts(opts []store.JobUpdateOption) updateParams {
	inspected := store.InspectOptions(opts)
	return updateParams{result: inspected.Result, errMsg: inspected.Error}
}

// fakeCache is a minimal in-memory cache.Cache.
type fakeCache struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{statuses: make(map[uuid.UUID]string)}
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }
func (c *fakeCache) Delete(ctx context.Context, key string) error              { return nil }
func (c *fakeCache) Ping(ctx context.Context) error                            { return nil }

func (c *fakeCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *fakeCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

func (c *fakeCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return 1, nil
}
