package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/ssdpd/internal/ui"
	"github.com/muurk/ssdpd/internal/version"
)

// AppName is shown in the container header
const AppName = "SSDPD BROWSER"

// Styles shared by the browser screens. Colors come from the ui palette so
// one-shot and interactive output look alike.
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor).
			Bold(true).
			Padding(1, 0)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Italic(true)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ui.SuccessColor).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ui.ErrorColor).
			Bold(true).
			Padding(0, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.ErrorColor)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ui.WarningColor).
			Bold(true)

	FieldKeyStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Width(14)

	FieldValueStyle = lipgloss.NewStyle().
			Foreground(ui.TextColor)
)

// RenderField renders one "key value" line, or nothing for an empty value.
func RenderField(key, value string) string {
	if value == "" {
		return ""
	}
	return "  " + FieldKeyStyle.Render(key) + FieldValueStyle.Render(value) + "\n"
}

// RenderError renders an error line
func RenderError(text string) string {
	return ErrorStyle.Render("✗ " + text)
}

func buildHeaderContent() string {
	left := lipgloss.NewStyle().
		Foreground(ui.TextColor).
		Bold(true).
		Render(AppName + " v" + version.Version)

	right := lipgloss.NewStyle().
		Foreground(ui.MutedColor).
		Render(version.ProductToken())

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
}

// RenderContainer wraps a screen in the full-terminal frame: header, content
// and a footer with the help line.
func RenderContainer(content, footerText string, width, height int) string {
	if width < ui.MinTerminalWidth {
		width = ui.MinTerminalWidth
	}

	headerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Bottom: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	footerStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.Border{Top: "─"}).
		BorderForeground(ui.PrimaryColor).
		Width(width-4).
		Padding(0, 1)

	inner := lipgloss.JoinVertical(
		lipgloss.Left,
		headerStyle.Render(buildHeaderContent()),
		lipgloss.NewStyle().Width(width-4).Render(content),
		footerStyle.Render(lipgloss.NewStyle().Foreground(ui.MutedColor).Render(footerText)),
	)

	frame := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(ui.PrimaryColor).
		Width(width - 2).
		AlignVertical(lipgloss.Top)
	if height > 2 {
		frame = frame.Height(height - 2)
	}

	return lipgloss.Place(width, max(height, 0), lipgloss.Left, lipgloss.Top, frame.Render(inner))
}
