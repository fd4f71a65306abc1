package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ModioBlue is the mod.io brand color.
const ModioBlue = 0x07c1d8

var (
	Bold    = lipgloss.NewStyle().Bold(true)
	Success = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	Failure = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	Muted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	Accent  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	// Box frames summaries such as the status table.
	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(hex(ModioBlue))).
		Padding(0, 1)
)

// Colorize renders text in a 24-bit color given as an integer, e.g. 0x07c1d8.
func Colorize(text string, color int) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex(color))).Render(text)
}

// Bullets renders one "  • item" line per item.
func Bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "  • %s\n", it)
	}
	return b.String()
}

func hex(color int) string {
	return fmt.Sprintf("#%06x", color)
}
