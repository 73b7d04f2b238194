package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table renders columnar output with tabwriter. The header row and a dashed
// separator are emitted before the first data row.
type Table struct {
	w       *tabwriter.Writer
	headers []string
	widths  map[int]int
	started bool
}

// NewTable creates a table writing to w with the given column headers.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		w:       tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers: headers,
		widths:  map[int]int{},
	}
}

// SetMaxWidth caps the display width of a column (0-indexed). Longer values
// are truncated with "...".
func (t *Table) SetMaxWidth(col, width int) *Table {
	t.widths[col] = width
	return t
}

// AddRow appends a data row. Missing cells are left empty; extras are dropped.
func (t *Table) AddRow(values ...string) {
	if !t.started {
		t.started = true
		t.writeCells(t.headers)
		seps := make([]string, len(t.headers))
		for i, h := range t.headers {
			seps[i] = strings.Repeat("-", len(h))
		}
		t.writeCells(seps)
	}

	cells := make([]string, len(t.headers))
	for i := range cells {
		if i < len(values) {
			cells[i] = t.clip(i, values[i])
		}
	}
	t.writeCells(cells)
}

// Render flushes the table. Call once after the last AddRow.
func (t *Table) Render() error {
	return t.w.Flush()
}

func (t *Table) writeCells(cells []string) {
	//nolint:errcheck // tabwriter buffers; errors surface on Flush
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *Table) clip(col int, s string) string {
	w, ok := t.widths[col]
	if !ok || w <= 0 || len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-3] + "..."
}
