// Package logs reads the folderexport log file for the CLI.
//
// Tail returns the last N lines or everything after a byte offset, with
// bounded memory, and can block until new lines arrive so `folderexport logs
// --follow` polls without busy looping. An optional substring filter narrows
// output to one job or event.
package logs
