package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	minColumnWidth = 8
	columnPadding  = 2
	rowNumWidth    = 4
)

// ResultsTable renders search rows as a grid with a numbered first column.
// Flexible columns share the terminal width evenly; cells wider than their
// column are truncated with an ellipsis.
type ResultsTable struct {
	display *DisplayContext
	headers []string
	rows    [][]string
	nums    []int
}

// NewResultsTable creates a table with the given column headers.
func NewResultsTable(display *DisplayContext, headers []string) *ResultsTable {
	return &ResultsTable{
		display: display,
		headers: headers,
		rows:    make([][]string, 0),
	}
}

// AddRow adds one row numbered after the previous one; missing cells
// render empty.
func (t *ResultsTable) AddRow(cells ...string) {
	num := 1
	if n := len(t.nums); n > 0 {
		num = t.nums[n-1] + 1
	}
	t.AddNumberedRow(num, cells...)
}

// AddNumberedRow adds one row shown with the given number.
func (t *ResultsTable) AddNumberedRow(num int, cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
	t.nums = append(t.nums, num)
}

// ColumnWidth returns the width given to each data column.
func (t *ResultsTable) ColumnWidth() int {
	if len(t.headers) == 0 {
		return minColumnWidth
	}
	available := t.display.AvailableWidth(rowNumWidth + columnPadding*len(t.headers))
	width := available / len(t.headers)
	if width < minColumnWidth {
		width = minColumnWidth
	}
	return width
}

// Render generates the table output as a string.
func (t *ResultsTable) Render() string {
	if len(t.rows) == 0 {
		return ""
	}
	width := t.ColumnWidth()

	headers := make([]string, 0, len(t.headers)+1)
	headers = append(headers, "#")
	for _, h := range t.headers {
		headers = append(headers, TruncateWithEllipsis(h, width))
	}
	maxNum := 0
	for _, n := range t.nums {
		maxNum = max(maxNum, n)
	}
	tableRows := make([][]string, len(t.rows))
	for i, row := range t.rows {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, FormatRowNum(t.nums[i], maxNum))
		for _, c := range row {
			cells = append(cells, TruncateWithEllipsis(c, width))
		}
		tableRows[i] = cells
	}

	tbl := table.New().
		Border(lipgloss.Border{
			Top:    "─",
			Bottom: "─",
			Left:   "",
			Right:  "",
			Middle: "─",
		}).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(true).
		BorderRow(false).
		BorderColumn(false).
		BorderStyle(Muted).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle()
			switch {
			case row == table.HeaderRow:
				style = AccentBold
			case col == 0:
				style = Muted
			}
			if col == 0 {
				return style.Width(rowNumWidth).Align(lipgloss.Right).PaddingRight(columnPadding)
			}
			style = style.Align(lipgloss.Left)
			if col < len(t.headers) {
				style = style.PaddingRight(columnPadding)
			}
			return style
		}).
		Headers(headers...).
		Rows(tableRows...)

	return tbl.Render()
}

// FormatCell renders a result value for display. Nil renders empty and
// floats drop trailing zeros.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", x)
	case float32:
		return fmt.Sprintf("%g", x)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// TruncateWithEllipsis truncates a string to maxLen runes, adding ellipsis
// if needed.
func TruncateWithEllipsis(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return strings.TrimRight(string(r[:maxLen-3]), " ") + "..."
}

// FormatRowNum formats a row number with consistent width.
func FormatRowNum(num, maxNum int) string {
	width := len(fmt.Sprintf("%d", maxNum))
	if width < 2 {
		width = 2
	}
	return fmt.Sprintf("%*d", width, num)
}
