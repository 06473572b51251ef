package store

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/repopulse/repopulse/internal/jobs"
	"github.com/repopulse/repopulse/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.GithubID, user.Login, user.Email, user.AvatarURL, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, github_id, login, email, avatar_url, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.GithubID, &u.Login, &u.Email, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) FindUserByGithubID(ctx context.Context, githubID int64) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, github_id, login, email, avatar_url, created_at, updated_at
		 FROM users WHERE github_id = $1`, githubID,
	).Scan(&u.ID, &u.GithubID, &u.Login, &u.Email, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by github id: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (github_id) DO UPDATE SET
		   login = EXCLUDED.login,
		   email = EXCLUDED.email,
		   avatar_url = EXCLUDED.avatar_url,
		   updated_at = NOW()
		 RETURNING id, github_id, login, email, avatar_url, created_at, updated_at`,
		user.ID, user.GithubID, user.Login, user.Email, user.AvatarURL, user.CreatedAt, user.UpdatedAt,
	).Scan(&u.ID, &u.GithubID, &u.Login, &u.Email, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

// --- Contexts ---

func (s *PostgresStore) CreateContext(ctx context.Context, c *models.Context) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contexts (id, user_id, name, repo_url, branch, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.Name, c.RepoURL, c.Branch, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create context: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContext(ctx context.Context, id uuid.UUID) (*models.Context, error) {
	var c models.Context
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, repo_url, branch, is_active, created_at, updated_at
		 FROM contexts WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.RepoURL, &c.Branch, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListContexts(ctx context.Context, userID uuid.UUID) ([]*models.Context, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, repo_url, branch, is_active, created_at, updated_at
		 FROM contexts WHERE user_id = $1 AND is_active ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()

	var contexts []*models.Context
	for rows.Next() {
		var c models.Context
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.RepoURL, &c.Branch,
			&c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		contexts = append(contexts, &c)
	}
	return contexts, rows.Err()
}

func (s *PostgresStore) DeactivateContext(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contexts SET is_active = FALSE, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND is_active`, id, userID)
	if err != nil {
		return fmt.Errorf("deactivate context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, type, status, payload, result, error, attempts, max_attempts, created_at, updated_at, completed_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	payload, err := validateJobPayload(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, type, status, payload, attempts, max_attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Type, job.Status, payload, job.Attempts, job.MaxAttempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateJobExclusive(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	payload, err := validateJobPayload(job)
	if err != nil {
		return nil, false, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin dedup tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent starts for the same (context, type). The lock is
	// released automatically at commit/rollback.
	lockKey := advisoryLockKey(job.Payload.ContextID(), job.Type)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return nil, false, fmt.Errorf("acquire context lock: %w", err)
	}

	row := tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE payload->>'context_id' = $1 AND type = $2 AND status IN ('pending', 'processing')
		 LIMIT 1`,
		job.Payload.ContextID().String(), job.Type)
	existing, err := scanJob(row)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("commit dedup tx: %w", err)
		}
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, type, status, payload, attempts, max_attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Type, job.Status, payload, job.Attempts, job.MaxAttempts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit dedup tx: %w", err)
	}
	return job, true, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

func (s *PostgresStore) FindJobsByType(ctx context.Context, t models.JobType) ([]*models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE type = $1`, t)
}

func (s *PostgresStore) FindJobsByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = $1`, status)
}

func (s *PostgresStore) FindActiveJobsByContext(ctx context.Context, contextID uuid.UUID) ([]*models.Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE payload->>'context_id' = $1 AND status IN ('pending', 'processing')`,
		contextID.String())
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus, opts ...JobUpdateOption) (*models.Job, error) {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.JobStatus
	var attempts, maxAttempts int
	err = tx.QueryRow(ctx,
		`SELECT status, attempts, max_attempts FROM jobs WHERE id = $1 FOR UPDATE`, id).
		Scan(&current, &attempts, &maxAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}

	if err := jobs.ValidateTransition(current, status, params.Result != nil, params.Error != nil, attempts, maxAttempts); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status.IsTerminal() {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted && params.Result != nil {
		query += fmt.Sprintf(", result = $%d", argIdx)
		args = append(args, params.Result)
		argIdx++
	}
	// A failure message or cancellation reason; never set on other statuses.
	if (status == models.JobStatusFailed || status == models.JobStatusCancelled) && params.Error != nil {
		query += fmt.Sprintf(", error = $%d", argIdx)
		args = append(args, *params.Error)
		argIdx++
	}

	query += " WHERE id = $1 RETURNING " + jobColumns

	job, err := scanJob(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status tx: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) IncrementAttempts(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET
		   attempts = attempts + 1,
		   status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		   completed_at = CASE WHEN attempts + 1 >= max_attempts THEN NOW() ELSE NULL END,
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+jobColumns, id)
	return scanJob(row)
}

func (s *PostgresStore) FindStuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.Job, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status IN ('pending', 'processing') AND updated_at < $1`, cutoff)
}

func (s *PostgresStore) JobStatusCounts(ctx context.Context) (map[models.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.JobStatus]int)
	for rows.Next() {
		var status models.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- helpers ---

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var result []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	var payload []byte
	err := row.Scan(&j.ID, &j.Type, &j.Status, &payload, &j.Result, &j.Error,
		&j.Attempts, &j.MaxAttempts, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Payload, err = models.UnmarshalPayload(j.Type, payload)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func validateJobPayload(job *models.Job) ([]byte, error) {
	if job.Payload == nil {
		return nil, fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if job.Payload.UserID() == uuid.Nil {
		return nil, fmt.Errorf("%w: payload user_id is required", ErrValidation)
	}
	if job.Payload.ContextID() == uuid.Nil {
		return nil, fmt.Errorf("%w: payload context_id is required", ErrValidation)
	}
	return models.MarshalPayload(job.Payload)
}

// advisoryLockKey hashes (contextID, type) into the bigint key space used
// by pg_advisory_xact_lock.
func advisoryLockKey(contextID uuid.UUID, t models.JobType) int64 {
	h := fnv.New64a()
	h.Write([]byte(contextID.String()))
	h.Write([]byte(t))
	return int64(h.Sum64())
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
