// Package pipeline turns a folder into a zip artifact.
//
// Execute drives a persisted job through pending, processing, and a single
// terminal state. ExportFolderSync runs the same discovery and assembly for
// command-line callers without touching the job store. Both resolve folder
// paths with ResolvePaths, place items in ascending ID order, and rename
// colliding basenames to stem-N.ext.
//
// Finished jobs are announced through notifications.Service after the
// terminal state is stored.
package pipeline
