// Package retention expires export artifacts and their job records.
//
// CleanupExpired runs from the daemon's hourly loop and from `folderexport
// clean`. It only touches complete or failed jobs, tolerates artifacts that
// are already gone, and skips records it cannot decode. DeleteAll and
// DeleteJob back the administrative purge and the API delete.
package retention
