package textutil

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fileNameReplacer drops characters that are unsafe in paths, URLs, or shells.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"%20", "-",
	"+", "-",
	"?", "",
	"\"", "",
	"'", "",
	"<", "",
	">", "",
	"|", "",
	"[", "",
	"]", "",
	"=", "",
	";", "",
	",", "",
	"&", "",
	"$", "",
	"#", "",
	"(", "",
	")", "",
	"~", "",
	"`", "",
	"!", "",
	"{", "",
	"}", "",
	"%", "",
	"\x00", "",
)

// SanitizeFileName folds name into an ASCII, filesystem-safe path segment.
// The result never contains a slash and is empty only when nothing usable
// remains.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	folded = fileNameReplacer.Replace(folded)

	var b strings.Builder
	b.Grow(len(folded))
	lastDash := false
	for _, r := range folded {
		switch {
		case r > unicode.MaxASCII || !unicode.IsPrint(r):
			continue
		case unicode.IsSpace(r) || r == '-':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		default:
			b.WriteRune(r)
			lastDash = false
		}
	}
	return strings.Trim(b.String(), ".-_")
}

// SplitStem splits a file name into stem and extension (without the dot).
// Dotfiles such as ".env" keep their full name as the stem.
func SplitStem(name string) (string, string) {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

// Disambiguate returns the n-th alternative for name, formatted `stem-n.ext`.
// Names without an extension become `stem-n`.
func Disambiguate(name string, n int) string {
	stem, ext := SplitStem(name)
	alt := stem + "-" + strconv.Itoa(n)
	if ext == "" {
		return alt
	}
	return alt + "." + ext
}
