package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of an export job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{StatusPending, StatusProcessing, StatusComplete, StatusFailed}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Options are frozen at job creation and serialized as JSON at the store boundary.
type Options struct {
	IncludeChildren bool `json:"include_children"`
	IncludeManifest bool `json:"include_manifest"`
}

// DefaultOptions enables descendants and the manifest.
func DefaultOptions() Options {
	return Options{IncludeChildren: true, IncludeManifest: true}
}

func encodeOptions(opts Options) (string, error) {
	data, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeOptions(raw string) (Options, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultOptions(), nil
	}
	opts := DefaultOptions()
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return Options{}, fmt.Errorf("decode options: %w", err)
	}
	return opts, nil
}

// Job is one export request and its lifecycle record.
type Job struct {
	ID                string
	FolderID          int64
	Options           Options
	UserID            int64
	Status            Status
	Progress          int
	Total             int
	ArtifactPath      string
	ArtifactName      string
	ArtifactSizeBytes int64
	ErrorCode         string
	Error             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// IsTerminal reports whether the job reached complete or failed.
func (j *Job) IsTerminal() bool {
	return j != nil && j.Status.IsTerminal()
}

// NewJob carries the caller-supplied fields of a job about to be created.
type NewJob struct {
	FolderID int64
	Options  Options
	UserID   int64
}

// Artifact describes a finalized archive.
type Artifact struct {
	Path      string
	Name      string
	SizeBytes int64
}

// Summary aggregates job counts by lifecycle bucket.
type Summary struct {
	Total      int
	Pending    int
	Processing int
	Complete   int
	Failed     int
}

// SummarizeStats folds per-status counts into a Summary.
func SummarizeStats(stats map[Status]int) Summary {
	var summary Summary
	for status, count := range stats {
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending += count
		case StatusProcessing:
			summary.Processing += count
		case StatusComplete:
			summary.Complete += count
		case StatusFailed:
			summary.Failed += count
		}
	}
	return summary
}
