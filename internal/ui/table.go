package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders aligned columns for static output.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow adds a row, padding missing cells.
func (t *Table) AddRow(cells ...string) {
	for len(cells) < len(t.headers) {
		cells = append(cells, "")
	}
	t.rows = append(t.rows, cells[:len(t.headers)])
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// String renders the table. Widths are measured without ANSI sequences so
// styled cells line up.
func (t *Table) String() string {
	if len(t.headers) == 0 {
		return ""
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	line := func(cells []string, style func(string) string) {
		var l strings.Builder
		for i, cell := range cells {
			if i > 0 {
				l.WriteString("  ")
			}
			l.WriteString(style(cell) + strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
		}
		b.WriteString(strings.TrimRight(l.String(), " ") + "\n")
	}

	line(t.headers, Bold)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("─", w)
	}
	line(seps, Dim)
	for _, row := range t.rows {
		line(row, func(s string) string { return s })
	}
	return b.String()
}
