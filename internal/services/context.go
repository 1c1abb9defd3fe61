package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	folderIDKey  contextKey = "folder_id"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the export job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the export job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithFolderID annotates context with the folder being exported.
func WithFolderID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, folderIDKey, id)
}

// FolderIDFromContext extracts the folder identifier if present.
func FolderIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(folderIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
