package preflight

import (
	"strings"

	"folderexport/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckExportDir("Export directory", cfg.Paths.ExportDir),
		CheckFreeSpace("Export volume", cfg.Paths.ExportDir, uint64(cfg.Preflight.MinFreeMiB)),
	}

	if strings.TrimSpace(cfg.Catalog.Path) != "" {
		results = append(results, CheckReadableFile("Catalog", cfg.Catalog.Path))
	}
	return results
}

// Failed returns the subset of results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
