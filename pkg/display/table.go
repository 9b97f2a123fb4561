package display

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/AliciaSchep/pgchat/pkg/db"
)

// sampleRows is how many rows are inspected when sizing columns
const sampleRows = 10

type column struct {
	name      string
	maxWidth  int
	minWidth  int
	isNumeric bool
}

// Table lays out rows in fixed-width columns that fit a terminal width
type Table struct {
	columns []column
	width   int
}

// NewTable creates a table for the given column names. A width of zero or
// less uses the current terminal width.
func NewTable(names []string, width int) *Table {
	if width <= 0 {
		width = GetTerminalWidth()
	}
	cols := make([]column, len(names))
	for i, name := range names {
		cols[i] = column{name: name, maxWidth: utf8.RuneCountInString(name), minWidth: 5}
	}
	return &Table{columns: cols, width: width}
}

// Analyze widens columns to fit the sample and marks numeric columns
func (t *Table) Analyze(rows [][]any) {
	for _, row := range rows {
		for i, value := range row {
			if i >= len(t.columns) {
				continue
			}
			if n := utf8.RuneCountInString(formatValue(value)); n > t.columns[i].maxWidth {
				t.columns[i].maxWidth = n
			}
			if !t.columns[i].isNumeric && isNumericValue(value) {
				t.columns[i].isNumeric = true
			}
		}
	}
}

// Widths assigns every column its minimum width, then hands out the rest of
// the line one character at a time to columns that can use it
func (t *Table) Widths() []int {
	n := len(t.columns)
	if n == 0 {
		return []int{}
	}
	available := t.width - (n*3 + 1)
	widths := make([]int, n)

	remaining := available
	for i, c := range t.columns {
		widths[i] = max(c.minWidth, utf8.RuneCountInString(c.name))
		remaining -= widths[i]
	}
	if remaining < 0 {
		even := max(3, available/n)
		for i := range widths {
			widths[i] = even
		}
		return widths
	}

	for remaining > 0 {
		grew := false
		for i, c := range t.columns {
			if remaining == 0 {
				break
			}
			if widths[i] < c.maxWidth {
				widths[i]++
				remaining--
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	return widths
}

// Header renders the column names and a separator line
func (t *Table) Header(widths []int) string {
	var b strings.Builder
	b.WriteString("| ")
	for i, c := range t.columns {
		if i >= len(widths) {
			continue
		}
		b.WriteString(t.cell(i, c.name, widths[i]))
		b.WriteString(" | ")
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", min(t.width, lineWidth(widths))))
	b.WriteString("\n")
	return b.String()
}

// Row renders one row of values
func (t *Table) Row(row []any, widths []int) string {
	var b strings.Builder
	b.WriteString("| ")
	for i, value := range row {
		if i >= len(widths) || i >= len(t.columns) {
			continue
		}
		b.WriteString(t.cell(i, formatValue(value), widths[i]))
		b.WriteString(" | ")
	}
	b.WriteString("\n")
	return b.String()
}

func (t *Table) cell(i int, s string, width int) string {
	s = truncate(s, width)
	if t.columns[i].isNumeric {
		return padLeft(s, width)
	}
	return padRight(s, width)
}

// Render writes the header and every row
func (t *Table) Render(w io.Writer, rows [][]any) error {
	t.Analyze(rows[:min(len(rows), sampleRows)])
	widths := t.Widths()

	if _, err := io.WriteString(w, t.Header(widths)); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := io.WriteString(w, t.Row(row, widths)); err != nil {
			return err
		}
	}
	return nil
}

// RenderResult writes a query result as a table followed by a row count
func RenderResult(w io.Writer, res *db.QueryResult, width int) error {
	if res == nil || len(res.Columns) == 0 {
		_, err := io.WriteString(w, "No data to display.\n")
		return err
	}
	if err := NewTable(res.ColumnNames(), width).Render(w, res.Matrix()); err != nil {
		return err
	}
	label := "rows"
	if res.RowCount == 1 {
		label = "row"
	}
	_, err := fmt.Fprintf(w, "(%d %s)\n", res.RowCount, label)
	return err
}

func formatValue(value any) string {
	if value == nil {
		return "NULL"
	}
	s := fmt.Sprintf("%v", value)
	return strings.ReplaceAll(s, "\n", " ")
}

func isNumericValue(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float32, float64:
		return true
	default:
		return false
	}
}

func lineWidth(widths []int) int {
	total := 1
	for _, w := range widths {
		total += w + 3
	}
	return total
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func padRight(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}
