package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"folderexport/internal/services"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS export_jobs (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    folder_id BIGINT NOT NULL,
    options_json JSONB NOT NULL,
    user_id BIGINT NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    artifact_path TEXT,
    artifact_name TEXT,
    artifact_size BIGINT NOT NULL DEFAULT 0,
    error_code TEXT,
    error_message TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_export_jobs_status ON export_jobs(status);
`

const pgJobColumns = `id, folder_id, options_json::text, user_id, status, progress, total,
    COALESCE(artifact_path, ''), COALESCE(artifact_name, ''), artifact_size,
    COALESCE(error_code, ''), COALESCE(error_message, ''), created_at, updated_at, completed_at`

// PostgresStore manages job persistence backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects a pool and ensures the export_jobs table exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	ctx = ensureContext(ctx)
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "postgres", "parse connection string", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) scan(row pgx.Row) (*Job, error) {
	var (
		job         Job
		optionsJSON string
		statusRaw   string
		completedAt *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.FolderID,
		&optionsJSON,
		&job.UserID,
		&statusRaw,
		&job.Progress,
		&job.Total,
		&job.ArtifactPath,
		&job.ArtifactName,
		&job.ArtifactSizeBytes,
		&job.ErrorCode,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	if completedAt != nil {
		utc := completedAt.UTC()
		job.CompletedAt = &utc
	}
	status, ok := ParseStatus(statusRaw)
	if !ok {
		return &job, fmt.Errorf("job %s: unknown status %q", job.ID, statusRaw)
	}
	job.Status = status
	opts, err := decodeOptions(optionsJSON)
	if err != nil {
		return &job, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Options = opts
	return &job, nil
}

func (s *PostgresStore) collect(rows pgx.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := s.scan(rows)
		if err != nil {
			if job != nil {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, job NewJob) (*Job, error) {
	optionsJSON, err := encodeOptions(job.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	id := uuid.NewString()
	now := s.now().UTC()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO export_jobs (id, folder_id, options_json, user_id, status, created_at, updated_at)
         VALUES ($1, $2, $3::jsonb, $4, $5, $6, $6)`,
		id, job.FolderID, optionsJSON, job.UserID, string(StatusPending), now,
	); err != nil {
		return nil, fmt.Errorf("insert export job: %w", err)
	}
	return s.Get(ctx, id)
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	job, err := s.scan(s.pool.QueryRow(ctx, `SELECT `+pgJobColumns+` FROM export_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) affected(ctx context.Context, rows int64, id, op string) error {
	if rows > 0 {
		return nil
	}
	return explainMiss(ctx, s, id, op)
}

// MarkProcessing implements Store.
func (s *PostgresStore) MarkProcessing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE export_jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(StatusProcessing), s.now().UTC(), id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return s.affected(ctx, tag.RowsAffected(), id, "mark processing")
}

// SetTotal implements Store.
func (s *PostgresStore) SetTotal(ctx context.Context, id string, total int) error {
	if total < 0 {
		total = 0
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE export_jobs SET total = $1, progress = LEAST(progress, $1), updated_at = $2 WHERE id = $3 AND status = $4`,
		total, s.now().UTC(), id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("set total: %w", err)
	}
	return s.affected(ctx, tag.RowsAffected(), id, "set total")
}

// UpdateProgress implements Store.
func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, progress int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE export_jobs SET progress = LEAST($1, total), updated_at = $2
         WHERE id = $3 AND status = $4 AND progress <= $1`,
		progress, s.now().UTC(), id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	miss := explainMiss(ctx, s, id, "update progress")
	if errors.Is(miss, services.ErrConflict) {
		return nil
	}
	return miss
}

// Complete implements Store.
func (s *PostgresStore) Complete(ctx context.Context, id string, artifact Artifact) error {
	now := s.now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE export_jobs
         SET status = $1, progress = total, artifact_path = $2, artifact_name = $3, artifact_size = $4,
             error_code = NULL, error_message = NULL, completed_at = $5, updated_at = $5
         WHERE id = $6 AND status = $7`,
		string(StatusComplete), artifact.Path, artifact.Name, artifact.SizeBytes, now, id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("complete export job: %w", err)
	}
	return s.affected(ctx, tag.RowsAffected(), id, "complete")
}

// Fail implements Store.
func (s *PostgresStore) Fail(ctx context.Context, id, code, message string) error {
	code, message = failureMessage(code, message)
	now := s.now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE export_jobs
         SET status = $1, artifact_path = NULL, error_code = $2, error_message = $3, completed_at = $4, updated_at = $4
         WHERE id = $5 AND status = ANY($6)`,
		string(StatusFailed), code, message, now, id, []string{string(StatusPending), string(StatusProcessing)})
	if err != nil {
		return fmt.Errorf("fail export job: %w", err)
	}
	return s.affected(ctx, tag.RowsAffected(), id, "fail")
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+pgJobColumns+` FROM export_jobs ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	return s.collect(rows)
}

// ListByStatus implements Store.
func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	raw := make([]string, 0, len(statuses))
	for _, status := range statuses {
		raw = append(raw, string(status))
	}
	rows, err := s.pool.Query(ctx, `SELECT `+pgJobColumns+` FROM export_jobs WHERE status = ANY($1) ORDER BY seq`, raw)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	return s.collect(rows)
}

// Walk implements Store.
func (s *PostgresStore) Walk(ctx context.Context, fn WalkFunc) error {
	rows, err := s.pool.Query(ctx, `SELECT `+pgJobColumns+` FROM export_jobs ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("walk jobs: %w", err)
	}
	type result struct {
		job *Job
		err error
	}
	var results []result
	for rows.Next() {
		job, scanErr := s.scan(rows)
		results = append(results, result{job: job, err: scanErr})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("walk jobs: %w", err)
	}
	for _, r := range results {
		if err := fn(r.job, r.err); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM export_jobs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete export job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Stats implements Store.
func (s *PostgresStore) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(1) FROM export_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = int(count)
	}
	return stats, rows.Err()
}
