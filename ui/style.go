package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Palette shared with the notification embeds.
const (
	ColorNew      = 0x2ECC71
	ColorUpdated  = 0x5865F2
	ColorMetadata = 0x95A5A6
	ColorFailed   = 0xE74C3C
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	faintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Colorize applies a 0xRRGGBB color to the text.
func Colorize(text string, color int) string {
	hexColor := fmt.Sprintf("#%06x", color)
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hexColor)).Render(text)
}

// Header renders a section title.
func Header(text string) string {
	return headerStyle.Render(text)
}

// Faint renders secondary text such as timestamps.
func Faint(text string) string {
	return faintStyle.Render(text)
}

// Count renders "label: n", colored only when n is non-zero.
func Count(label string, n, color int) string {
	s := fmt.Sprintf("%s: %d", label, n)
	if n == 0 {
		return Faint(s)
	}
	return Colorize(s, color)
}
