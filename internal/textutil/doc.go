// Package textutil provides text helpers for building archive entry names and
// artifact file names.
//
// SanitizeFileName folds a folder or file name to a filesystem-safe ASCII
// segment: accents are decomposed and stripped, characters that are unsafe in
// paths or shells are removed, and whitespace runs collapse to single dashes.
// SplitStem and Disambiguate implement the `stem-N.ext` naming used when two
// entries would otherwise land on the same archive path.
package textutil
