package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders datasets as an ASCII table.
type TableFormatter struct{}

// Format renders a dataset as a table.
func (f *TableFormatter) Format(d Dataset) (string, error) {
	t := newTable(d)
	t.SetStyle(table.StyleRounded)
	if d.Title != "" {
		t.SetTitle(d.Title)
	}
	if len(d.Rows) == 0 {
		t.AppendRow(table.Row{"(none)"})
	}
	return t.Render(), nil
}

func newTable(d Dataset) table.Writer {
	t := table.NewWriter()
	if len(d.Header) > 0 {
		t.AppendHeader(d.Header)
	}
	t.AppendRows(d.Rows)
	if len(d.Footer) > 0 {
		t.AppendFooter(d.Footer)
	}
	return t
}
