package queue

import "context"

// ExecRaw runs a statement directly so tests can plant malformed rows.
func ExecRaw(ctx context.Context, s *SQLiteStore, query string, args ...any) error {
	_, err := s.execWithRetry(ctx, query, args...)
	return err
}
