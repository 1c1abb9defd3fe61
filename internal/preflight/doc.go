// Package preflight provides readiness checks for the filesystem paths that
// folderexport depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs failed checks as warnings.
//     A failed check never blocks startup because exports report their own
//     failures on the job record.
//   - The CLI "folderexport status" command renders the same results.
package preflight
