package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// IsInteractive reports whether stdout is a terminal. Piped and redirected
// runs skip spinners and the live backfill view.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var pageHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorPrimary).
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorSecondary).
	MarginBottom(1)

// RenderPageHeader prints the banner the ops commands open with.
func RenderPageHeader(title, subtitle string) {
	fmt.Println(pageHeaderStyle.Render("🧠 " + title))
	if subtitle != "" {
		fmt.Println("  " + StyleSubtle.Render(subtitle))
	}
}

// Panel is a bordered block of terminal output. Stats and the policy
// dry-run wrap their summaries in one.
type Panel struct {
	Title       string
	Content     string
	BorderColor lipgloss.Color
	Width       int
}

var panelTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

// NewPanel creates a panel with the default gray border and auto width.
func NewPanel(title, content string) *Panel {
	return &Panel{
		Title:       title,
		Content:     content,
		BorderColor: ColorSecondary,
	}
}

// WithBorderColor sets the border color and returns the panel.
func (p *Panel) WithBorderColor(color lipgloss.Color) *Panel {
	p.BorderColor = color
	return p
}

// WithWidth pins the panel to a fixed width and returns the panel.
func (p *Panel) WithWidth(width int) *Panel {
	p.Width = width
	return p
}

// Render draws the panel. A titled panel carries the title as its first
// line, bold in the primary color.
func (p *Panel) Render() string {
	body := p.Content
	if p.Title != "" {
		body = panelTitleStyle.Render(p.Title) + "\n" + p.Content
	}

	frame := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.BorderColor).
		Padding(0, 1)
	if p.Width > 0 {
		frame = frame.Width(p.Width)
	}
	return frame.Render(body)
}

// RenderPanel renders a panel with the default border.
func RenderPanel(title, content string) string {
	return NewPanel(title, content).Render()
}

// RenderInfoPanel renders a panel with a cyan border.
func RenderInfoPanel(title, content string) string {
	return NewPanel(title, content).WithBorderColor(ColorCyan).Render()
}

// RenderSuccessPanel renders a panel with a green border.
func RenderSuccessPanel(title, content string) string {
	return NewPanel(title, content).WithBorderColor(ColorSuccess).Render()
}

// RenderErrorPanel renders a panel with a red border.
func RenderErrorPanel(title, content string) string {
	return NewPanel(title, content).WithBorderColor(ColorError).Render()
}

// RenderWarningPanel renders a panel with a yellow border.
func RenderWarningPanel(title, content string) string {
	return NewPanel(title, content).WithBorderColor(ColorWarning).Render()
}

// Truncate shortens s to maxLen runes, ellipsis included. Memory content
// is unicode; cutting on runes keeps a multi-byte code point intact.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// WrapText wraps text at word boundaries. Embedded newlines are kept, and
// a single word longer than width stays on its own line unbroken.
func WrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		if len(line) <= width {
			out = append(out, line)
			continue
		}
		current := ""
		for _, word := range strings.Fields(line) {
			switch {
			case current == "":
				current = word
			case len(current)+1+len(word) <= width:
				current += " " + word
			default:
				out = append(out, current)
				current = word
			}
		}
		if current != "" {
			out = append(out, current)
		}
	}
	return strings.Join(out, "\n")
}
