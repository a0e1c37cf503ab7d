// Package ui renders terminal output for pgphase: styled messages, tables,
// plan and status reports, error diagnostics and interactive rename prompts.
package ui

import (
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var colors atomic.Bool

func init() {
	colors.Store(detectColors())
}

// detectColors enables styling for terminals unless NO_COLOR or TERM=dumb
// say otherwise.
func detectColors() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// EnableColors reports whether output is styled.
func EnableColors() bool { return colors.Load() }

// SetColors forces styling on or off.
func SetColors(on bool) { colors.Store(on) }

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	in, out := os.Stdin.Fd(), os.Stdout.Fd()
	return (isatty.IsTerminal(in) || isatty.IsCygwinTerminal(in)) &&
		(isatty.IsTerminal(out) || isatty.IsCygwinTerminal(out))
}

var (
	colorPrimary = lipgloss.Color("12")
	colorSuccess = lipgloss.Color("10")
	colorWarning = lipgloss.Color("11")
	colorError   = lipgloss.Color("9")
	colorMuted   = lipgloss.Color("8")
	colorCyan    = lipgloss.Color("14")

	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	noteStyle    = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	primaryStyle = lipgloss.NewStyle().Foreground(colorPrimary)
	dimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle    = lipgloss.NewStyle().Bold(true)

	badgeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Padding(0, 1).Bold(true)
)

func render(style lipgloss.Style, s string) string {
	if !EnableColors() {
		return s
	}
	return style.Render(s)
}

func Error(s string) string   { return render(errorStyle, s) }
func Warning(s string) string { return render(warningStyle, s) }
func Note(s string) string    { return render(noteStyle, s) }
func Help(s string) string    { return render(helpStyle, s) }
func Success(s string) string { return render(successStyle, s) }
func Primary(s string) string { return render(primaryStyle, s) }
func Dim(s string) string     { return render(dimStyle, s) }
func Bold(s string) string    { return render(boldStyle, s) }

// Badge renders a short label on a colored background, or in brackets when
// colors are off.
func Badge(s string, color lipgloss.Color) string {
	if !EnableColors() {
		return "[" + s + "]"
	}
	return badgeStyle.Background(color).Render(s)
}

// Check and Cross prefix success and failure lines.
func Check(s string) string { return Success("✓") + " " + s }
func Cross(s string) string { return Error("✗") + " " + s }
