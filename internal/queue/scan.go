package queue

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// scanJob reads one row. Decoding problems after a successful Scan return the
// partially populated job alongside the error so sweeps can report the ID.
func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           string
		folderID     int64
		optionsJSON  sql.NullString
		userID       int64
		statusRaw    string
		progress     int
		total        int
		artifactPath sql.NullString
		artifactName sql.NullString
		artifactSize int64
		errorCode    sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&folderID,
		&optionsJSON,
		&userID,
		&statusRaw,
		&progress,
		&total,
		&artifactPath,
		&artifactName,
		&artifactSize,
		&errorCode,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                id,
		FolderID:          folderID,
		UserID:            userID,
		Progress:          progress,
		Total:             total,
		ArtifactPath:      artifactPath.String,
		ArtifactName:      artifactName.String,
		ArtifactSizeBytes: artifactSize,
		ErrorCode:         errorCode.String,
		Error:             errorMessage.String,
	}
	status, ok := ParseStatus(statusRaw)
	if !ok {
		return job, fmt.Errorf("job %s: unknown status %q", id, statusRaw)
	}
	job.Status = status
	opts, err := decodeOptions(optionsJSON.String)
	if err != nil {
		return job, fmt.Errorf("job %s: %w", id, err)
	}
	job.Options = opts
	created, err := parseTimeString(createdRaw.String)
	if err != nil {
		return job, fmt.Errorf("job %s: invalid created_at %q", id, createdRaw.String)
	}
	job.CreatedAt = created
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

// collectJobs drains rows, skipping records that scan but fail to decode.
func collectJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
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
