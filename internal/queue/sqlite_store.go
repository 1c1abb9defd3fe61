package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"folderexport/internal/services"
)

// SQLiteStore manages job persistence backed by SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const jobColumns = "id, folder_id, options_json, user_id, status, progress, total, artifact_path, artifact_name, artifact_size, error_code, error_message, created_at, updated_at, completed_at"

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// SetClock replaces the time source used for created_at and updated_at.
// A nil now restores time.Now.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.now = now
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// OpenSQLite opens (creating if needed) the job database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ensureContext(ctx), pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := store.initSchema(ensureContext(ctx)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) timestamp() string {
	return formatTime(s.now())
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, job NewJob) (*Job, error) {
	optionsJSON, err := encodeOptions(job.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	id := uuid.NewString()
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO export_jobs (id, folder_id, options_json, user_id, status, progress, total, artifact_size, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`,
		id, job.FolderID, optionsJSON, job.UserID, StatusPending, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert export job: %w", err)
	}
	return s.Get(ctx, id)
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM export_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return job, nil
}

// MarkProcessing implements Store.
func (s *SQLiteStore) MarkProcessing(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE export_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing, s.timestamp(), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return s.checkAffected(ctx, res, id, "mark processing")
}

// SetTotal implements Store.
func (s *SQLiteStore) SetTotal(ctx context.Context, id string, total int) error {
	if total < 0 {
		total = 0
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE export_jobs SET total = ?, progress = MIN(progress, ?), updated_at = ? WHERE id = ? AND status = ?`,
		total, total, s.timestamp(), id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("set total: %w", err)
	}
	return s.checkAffected(ctx, res, id, "set total")
}

// UpdateProgress implements Store.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, progress int) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE export_jobs SET progress = MIN(?, total), updated_at = ?
         WHERE id = ? AND status = ? AND progress <= ?`,
		progress, s.timestamp(), id, StatusProcessing, progress,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if affected > 0 {
		return nil
	}
	miss := explainMiss(ctx, s, id, "update progress")
	if errors.Is(miss, services.ErrConflict) {
		// Processing job with a higher stored progress; stale values are ignored.
		return nil
	}
	return miss
}

// Complete implements Store.
func (s *SQLiteStore) Complete(ctx context.Context, id string, artifact Artifact) error {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE export_jobs
         SET status = ?, progress = total, artifact_path = ?, artifact_name = ?, artifact_size = ?,
             error_code = NULL, error_message = NULL, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusComplete, artifact.Path, artifact.Name, artifact.SizeBytes, now, now, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete export job: %w", err)
	}
	return s.checkAffected(ctx, res, id, "complete")
}

// Fail implements Store.
func (s *SQLiteStore) Fail(ctx context.Context, id, code, message string) error {
	code, message = failureMessage(code, message)
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE export_jobs
         SET status = ?, artifact_path = NULL, error_code = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, code, message, now, now, id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail export job: %w", err)
	}
	return s.checkAffected(ctx, res, id, "fail")
}

func (s *SQLiteStore) checkAffected(ctx context.Context, res sql.Result, id, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected > 0 {
		return nil
	}
	return explainMiss(ctx, s, id, op)
}

// Recent implements Store.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM export_jobs ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListByStatus implements Store.
func (s *SQLiteStore) ListByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM export_jobs WHERE status IN (`+makePlaceholders(len(statuses))+`) ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs by status: %w", err)
	}
	return collectJobs(rows)
}

// Walk implements Store. Rows are buffered before fn runs so fn may delete
// records without holding a read cursor open.
func (s *SQLiteStore) Walk(ctx context.Context, fn WalkFunc) error {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM export_jobs ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("walk jobs: %w", err)
	}
	type result struct {
		job *Job
		err error
	}
	var results []result
	for rows.Next() {
		job, scanErr := scanJob(rows)
		results = append(results, result{job: job, err: scanErr})
	}
	iterErr := rows.Err()
	rows.Close()
	if iterErr != nil {
		return fmt.Errorf("walk jobs: %w", iterErr)
	}
	for _, r := range results {
		if err := fn(r.job, r.err); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM export_jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete export job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete export job: %w", err)
	}
	return affected > 0, nil
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM export_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
