// Package archive writes export artifacts as zip containers.
//
// A Writer never overwrites an entry: callers probe Exists and pick a free
// name before adding. ZipWriter streams entries into a temporary file beside
// the destination and only renames it into place after the central directory
// is flushed and synced, so a failed Close never leaves a truncated artifact
// at the destination path.
package archive
