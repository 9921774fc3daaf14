package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	tableCellStyle   = lipgloss.NewStyle().Foreground(ColorText)
	tableRuleStyle   = lipgloss.NewStyle().Foreground(ColorSecondary)
)

// Table lays out aligned columns for the ops commands. The working-memory
// and audit listings render through it.
type Table struct {
	Headers  []string
	Rows     [][]string
	MaxWidth int // widest a column may grow; 0 leaves columns unclamped
}

// ColumnWidths sizes each column to its widest cell, clamped to MaxWidth.
func (t *Table) ColumnWidths() []int {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	if t.MaxWidth > 0 {
		for i, w := range widths {
			if w > t.MaxWidth {
				widths[i] = t.MaxWidth
			}
		}
	}
	return widths
}

// Render draws the table: a bold header row, a rule, then the data rows.
func (t *Table) Render() string {
	if len(t.Headers) == 0 {
		return ""
	}
	widths := t.ColumnWidths()

	var sb strings.Builder
	writeRow(&sb, t.Headers, widths, tableHeaderStyle)

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = tableRuleStyle.Render(strings.Repeat("─", w))
	}
	sb.WriteString(" " + strings.Join(rule, "──") + "\n")

	for _, row := range t.Rows {
		cells := make([]string, len(t.Headers))
		for i := range t.Headers {
			if i < len(row) {
				cells[i] = clipCell(row[i], widths[i])
			}
		}
		writeRow(&sb, cells, widths, tableCellStyle)
	}
	return sb.String()
}

// writeRow pads every cell to its column width and joins them.
func writeRow(sb *strings.Builder, cells []string, widths []int, style lipgloss.Style) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = style.Render(padRight(c, widths[i]))
	}
	sb.WriteString(" " + strings.Join(parts, "  ") + "\n")
}

// clipCell cuts an overlong cell, marking the cut with a one-rune ellipsis.
func clipCell(val string, width int) string {
	if len(val) <= width {
		return val
	}
	if width <= 1 {
		return "…"
	}
	return val[:width-1] + "…"
}

func padRight(s string, width int) string {
	if width <= len(s) {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// TruncateID shortens an identifier for display. Graph and audit ids are a
// short type prefix plus eight hex chars (n-1a2b3c4d), so ten characters
// preserve the whole id; anything longer gets cut.
func TruncateID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

// TerminalWidth returns the current stdout terminal width, or fallback when
// stdout is not a terminal (piped output, CI).
func TerminalWidth(fallback int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
