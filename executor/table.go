package executor

import (
	"fmt"
	"strings"
	"time"
)

// Cell renders one raw value for display.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

// String renders the result as a bordered text table with a row count.
func (r *Result) String() string {
	if len(r.Columns) == 0 {
		return "(0 rows)\n"
	}

	cells := make([][]string, len(r.Rows))
	widths := make([]int, len(r.Columns))
	for i, c := range r.Columns {
		widths[i] = len(c)
	}
	for i, row := range r.Rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = Cell(v)
			if j < len(widths) && len(cells[i][j]) > widths[j] {
				widths[j] = len(cells[i][j])
			}
		}
	}

	var b strings.Builder
	sep := separator(widths)
	b.WriteString(sep)
	writeRow(&b, r.Columns, widths)
	b.WriteString(sep)
	for _, row := range cells {
		writeRow(&b, row, widths)
	}
	b.WriteString(sep)

	if n := len(r.Rows); n == 1 {
		b.WriteString("(1 row)\n")
	} else {
		fmt.Fprintf(&b, "(%d rows)\n", n)
	}
	if r.Truncated {
		fmt.Fprintf(&b, "(truncated at %d rows)\n", len(r.Rows))
	}
	return b.String()
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	b.WriteByte('|')
	for i, c := range cells {
		if i >= len(widths) {
			break
		}
		fmt.Fprintf(b, " %-*s |", widths[i], c)
	}
	b.WriteByte('\n')
}

func separator(widths []int) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteByte('+')
	}
	b.WriteByte('\n')
	return b.String()
}
