package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"folderexport/internal/api"
)

const displayTimeLayout = "2006-01-02 15:04"

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

func formatProgress(view api.JobView) string {
	if view.Total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d (%.0f%%)", view.Progress, view.Total, view.Percent)
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

// formatAge renders an API timestamp as "2006-01-02 15:04 (3 hours ago)".
func formatAge(value string, now time.Time) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return fmt.Sprintf("%s (%s)", ts.Local().Format(displayTimeLayout), humanize.RelTime(ts, now, "ago", "from now"))
}
