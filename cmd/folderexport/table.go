package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableSpec describes a rendered table. Columns listed in rightAligned (by
// zero-based index) are right aligned; everything else is left aligned.
type tableSpec struct {
	headers      []string
	rows         [][]string
	rightAligned []int
	footer       string
}

func (s tableSpec) render() string {
	if len(s.headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(toRow(s.headers, len(s.headers)))
	for _, row := range s.rows {
		tw.AppendRow(toRow(row, len(s.headers)))
	}
	if s.footer != "" {
		tw.AppendFooter(toRow([]string{s.footer}, len(s.headers)))
	}

	right := make(map[int]bool, len(s.rightAligned))
	for _, idx := range s.rightAligned {
		right[idx] = true
	}
	configs := make([]table.ColumnConfig, 0, len(s.headers))
	for i := range s.headers {
		align := text.AlignLeft
		if right[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// toRow pads or truncates values to exactly width cells.
func toRow(values []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
