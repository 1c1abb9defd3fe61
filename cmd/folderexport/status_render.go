package main

import (
	"fmt"
	"strings"
)

type checkState int

const (
	checkInfo checkState = iota
	checkOK
	checkWarn
	checkFailed
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var checkStyles = map[checkState]struct {
	label string
	color string
}{
	checkInfo:   {"INFO", ansiBlue},
	checkOK:     {"OK", ansiGreen},
	checkWarn:   {"WARN", ansiYellow},
	checkFailed: {"ERROR", ansiRed},
}

// statusWriter accumulates the lines of the status report.
type statusWriter struct {
	colorize bool
	lines    []string
}

func (w *statusWriter) section(title string) {
	if len(w.lines) > 0 {
		w.lines = append(w.lines, "")
	}
	heading := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	if w.colorize {
		heading = ansiBlue + heading + ansiReset
	}
	w.lines = append(w.lines, heading)
}

func (w *statusWriter) line(label string, state checkState, message string) {
	style := checkStyles[state]
	text := fmt.Sprintf("  %-20s [%s]", label+":", style.label)
	if message != "" {
		text += " " + message
	}
	if w.colorize {
		text = style.color + text + ansiReset
	}
	w.lines = append(w.lines, text)
}

func (w *statusWriter) String() string {
	return strings.Join(w.lines, "\n") + "\n"
}
