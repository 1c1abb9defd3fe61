// Package logging assembles structured slog loggers and formatting helpers used
// across folderexport services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with export job IDs, folder IDs, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail, and a
// retention helper that prunes old log files at daemon start.
package logging
