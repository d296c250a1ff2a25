package cliui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Column is one column of a Table. Width is the maximum display width of a
// cell; zero means unbounded.
type Column struct {
	Title string
	Width int
	Style lipgloss.Style
}

// Table prints aligned rows. Cells are measured by display width, so
// styled text and wide runes line up.
type Table struct {
	columns []Column
	rows    [][]string
}

// NewTable creates a table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{columns: columns}
}

// Row appends a row. Missing cells are left blank and extra cells dropped.
func (t *Table) Row(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(cells) {
			row[i] = Fit(cells[i], t.columns[i].Width)
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the header and every row to w, indented by two spaces.
func (t *Table) Render(w io.Writer) {
	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = ansi.StringWidth(c.Title)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], ansi.StringWidth(cell))
		}
	}

	header := make([]string, len(t.columns))
	for i, c := range t.columns {
		header[i] = pad(HeaderStyle.Render(c.Title), widths[i])
	}
	fmt.Fprintf(w, "  %s\n", strings.TrimRight(strings.Join(header, "  "), " "))

	for _, row := range t.rows {
		line := make([]string, len(row))
		for i, cell := range row {
			line[i] = pad(t.columns[i].Style.Render(cell), widths[i])
		}
		fmt.Fprintf(w, "  %s\n", strings.TrimRight(strings.Join(line, "  "), " "))
	}
}

// Fit shortens s to width display cells, marking the cut with an ellipsis.
// Newlines are flattened to spaces. A width of zero leaves s unchanged.
func Fit(s string, width int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if width <= 0 || ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

// pad right-pads s to width display cells.
func pad(s string, width int) string {
	if gap := width - ansi.StringWidth(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
