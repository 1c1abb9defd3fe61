// Package notifications announces finished exports through ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the pipeline can notify unconditionally. Delivery failures are returned to
// the caller, which logs them without affecting the job outcome.
package notifications
