// Package daemon coordinates the long-running folderexport process.
//
// It wires configuration, the job store, the workflow manager, and the HTTP
// API into a single lifecycle with flock-based locking to prevent multiple
// instances. The daemon runs preflight checks and log pruning at startup and
// reports a combined status for the /status route and the CLI.
//
// Keep orchestration logic here: export semantics live in the pipeline,
// retention, and api packages while the daemon focuses on startup, shutdown,
// and HTTP plumbing.
package daemon
