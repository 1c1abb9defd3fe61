// Package workflow schedules export jobs onto a bounded worker pool.
//
// The Manager accepts job IDs through Enqueue, runs each one on a single
// worker via the pipeline, and keeps an in-flight set so no job runs twice at
// once. A poller re-enqueues pending jobs that did not fit the buffer or
// survived a restart, and a cleanup loop runs the retention sweep on its own
// interval. Jobs left in processing by a crash are not retried.
package workflow
