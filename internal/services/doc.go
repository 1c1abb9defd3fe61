// Package services defines shared utilities consumed by the export pipeline,
// the job API, and the retention sweep.
//
// Key responsibilities:
//   - Context helpers that stamp export job IDs, folder IDs, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and the Details lookup that
//     turns a marked error into the short user-facing message persisted on a
//     failed job.
//
// Use these helpers when wiring new components so error classification and
// observability stay uniform across the pipeline and its outer surfaces.
package services
