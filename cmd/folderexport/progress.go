package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progressReporter renders archive progress as a bar on a terminal and as
// sparse plain lines everywhere else.
type progressReporter struct {
	out      io.Writer
	label    string
	bar      *progressbar.ProgressBar
	lastStep int
}

func newProgressReporter(out io.Writer, label string) *progressReporter {
	return &progressReporter{out: out, label: label, lastStep: -1}
}

func (p *progressReporter) update(processed, total int) {
	if total <= 0 {
		return
	}
	if isTerminal(p.out) {
		if p.bar == nil {
			p.bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(p.out),
				progressbar.OptionSetDescription(p.label),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = p.bar.Set(processed)
		return
	}
	// One line per 10% step keeps logs readable for large folders.
	step := processed * 10 / total
	if step == p.lastStep && processed != total {
		return
	}
	p.lastStep = step
	fmt.Fprintf(p.out, "%s: %d/%d\n", p.label, processed, total)
}

func (p *progressReporter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
