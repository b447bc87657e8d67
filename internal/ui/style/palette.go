package style

import "github.com/charmbracelet/lipgloss"

var (
	// Primary colors
	Cyan    = lipgloss.Color("#00E5FF") // Primary highlight
	Magenta = lipgloss.Color("#FF1B6B") // Accent
	Yellow  = lipgloss.Color("#FFB500") // Warnings
	Green   = lipgloss.Color("#2AFFAA") // Healthy / target side
	Red     = lipgloss.Color("#FF5555") // Unhealthy / stop side
	Blue    = lipgloss.Color("#3B82F6") // Info

	// Base colors
	Base03 = lipgloss.Color("#1B1D23") // Background
	Base02 = lipgloss.Color("#262831") // Darker background
	Base01 = lipgloss.Color("#6C7280") // Muted text
	Base2  = lipgloss.Color("#ECEFF4") // Primary text
	Base1  = lipgloss.Color("#B4BCC8") // Secondary text
)

// Palette provides a centralized color management
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color
	Info      lipgloss.Color

	Background    lipgloss.Color
	BackgroundAlt lipgloss.Color
	Text          lipgloss.Color
	TextMuted     lipgloss.Color
	TextSecondary lipgloss.Color
}

// DefaultPalette returns the default color palette
func DefaultPalette() Palette {
	return Palette{
		Primary:   Cyan,
		Secondary: Magenta,
		Success:   Green,
		Error:     Red,
		Warning:   Yellow,
		Info:      Blue,

		Background:    Base03,
		BackgroundAlt: Base02,
		Text:          Base2,
		TextMuted:     Base01,
		TextSecondary: Base1,
	}
}

// SeverityColor maps an alert severity to a palette color.
func (p Palette) SeverityColor(severity string) lipgloss.Color {
	switch severity {
	case "critical":
		return p.Error
	case "warning":
		return p.Warning
	default:
		return p.Info
	}
}

// Shared styles
var (
	Title = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	PaneTitle = lipgloss.NewStyle().
			Foreground(Base1).
			Bold(true).
			MarginTop(1)

	FocusedPaneTitle = PaneTitle.
				Foreground(Magenta)

	ErrorText = lipgloss.NewStyle().
			Foreground(Red)

	MutedText = lipgloss.NewStyle().
			Foreground(Base01)
)
