// Package api is the transport-neutral export job service shared by the HTTP
// server and the CLI.
//
// Service validates submissions, creates pending jobs, hands them to the
// worker pool, and translates queue records into JobView values. JobView never
// carries the artifact's filesystem path; downloads go through OpenArtifact,
// which separates jobs that are not finished (ErrConflict) from artifacts that
// have already expired (ErrGone).
//
// JSON field names are snake_case to match the submission body.
package api
