// Package main hosts the folderexport CLI entrypoint and command graph.
//
// Commands run against the same job store and export directory as the
// daemon. "folder" exports synchronously without a job record, "submit"
// creates a job for the daemon (or runs it inline with --wait when no daemon
// holds the lock), and list/show/delete/clean manage existing exports.
package main
