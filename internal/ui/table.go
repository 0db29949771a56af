package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders borderless aligned columns. Widths are measured with
// lipgloss so styled cells align.
type Table struct {
	header     []string
	rows       [][]string
	colWidths  []int
	colPadding int
}

// NewTable creates a table with cols columns.
func NewTable(cols int) *Table {
	return &Table{
		colWidths:  make([]int, cols),
		colPadding: 2,
	}
}

// SetHeader sets a header row rendered in bold above the rows.
func (t *Table) SetHeader(cells ...string) {
	t.header = t.fit(cells)
}

// AddRow adds a row. Extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, t.fit(cells))
}

func (t *Table) fit(cells []string) []string {
	row := make([]string, len(t.colWidths))
	for i := 0; i < len(t.colWidths) && i < len(cells); i++ {
		row[i] = cells[i]
		if w := lipgloss.Width(cells[i]); w > t.colWidths[i] {
			t.colWidths[i] = w
		}
	}
	return row
}

// String renders the table. A table without rows renders empty.
func (t *Table) String() string {
	if len(t.rows) == 0 {
		return ""
	}

	var sb strings.Builder
	if t.header != nil {
		t.writeRow(&sb, t.header, Bold)
	}
	for _, row := range t.rows {
		t.writeRow(&sb, row, lipgloss.NewStyle())
	}
	return sb.String()
}

func (t *Table) writeRow(sb *strings.Builder, row []string, style lipgloss.Style) {
	padding := strings.Repeat(" ", t.colPadding)
	for i, cell := range row {
		if i > 0 {
			sb.WriteString(padding)
		}
		sb.WriteString(style.Render(cell))
		// Last column is not padded.
		if i < len(row)-1 {
			sb.WriteString(strings.Repeat(" ", t.colWidths[i]-lipgloss.Width(cell)))
		}
	}
	sb.WriteString("\n")
}

// List renders indented bullet items.
type List struct {
	items  []string
	indent string
	bullet string
}

// NewList creates a list with a "•" bullet.
func NewList() *List {
	return &List{
		indent: "  ",
		bullet: "•",
	}
}

// SetBullet sets the bullet character
func (l *List) SetBullet(bullet string) {
	l.bullet = bullet
}

func (l *List) Add(item string) {
	l.items = append(l.items, item)
}

func (l *List) String() string {
	var sb strings.Builder
	for _, item := range l.items {
		sb.WriteString(l.indent)
		sb.WriteString(l.bullet)
		sb.WriteString(" ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
	return sb.String()
}
