package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidFolder  = errors.New("invalid folder")
	ErrNoItemsFound   = errors.New("no items found")
	ErrSourceMissing  = errors.New("source missing")
	ErrCreateFailed   = errors.New("archive create failed")
	ErrFinalizeFailed = errors.New("archive finalize failed")
	ErrNotFound       = errors.New("not found")
	ErrGone           = errors.New("gone")
	ErrConflict       = errors.New("conflict")
	ErrTerminal       = errors.New("job already terminal")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
	ErrTransient      = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails is the externally visible classification of a failure.
type ErrorDetails struct {
	Code    string
	Message string
}

var detailTable = []struct {
	marker  error
	code    string
	message string
}{
	{ErrInvalidFolder, "invalid_folder", "Folder not found."},
	{ErrNoItemsFound, "no_items_found", "No media files found in this folder."},
	{ErrCreateFailed, "create_failed", "Could not create ZIP file."},
	{ErrFinalizeFailed, "finalize_failed", "Could not finalize ZIP file."},
	{ErrSourceMissing, "source_missing", "Source file is missing."},
	{ErrNotFound, "not_found", "Export not found."},
	{ErrGone, "gone", "Export file no longer exists. It may have expired."},
	{ErrConflict, "conflict", "Export is not yet complete."},
	{ErrValidation, "validation", "Request is invalid."},
	{ErrConfiguration, "configuration", "Export directory is not usable."},
}

// Details maps an error onto a stable code and a message that is safe to
// persist on a job record. Unclassified errors collapse to a generic message so
// paths and internal state never leak.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	for _, entry := range detailTable {
		if errors.Is(err, entry.marker) {
			return ErrorDetails{Code: entry.code, Message: entry.message}
		}
	}
	return ErrorDetails{Code: "internal", Message: "Export failed unexpectedly."}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
