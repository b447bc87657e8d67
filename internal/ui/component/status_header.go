package component

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vanlt3/LifeTime-Swing/internal/health"
	"github.com/vanlt3/LifeTime-Swing/internal/ui/style"
)

// StatusHeader displays monitoring state, position count and health at the top
type StatusHeader struct {
	source      string
	status      health.Status
	lastRefresh time.Time
	connected   bool
	width       int
	style       statusHeaderStyle
}

type statusHeaderStyle struct {
	container lipgloss.Style
	title     lipgloss.Style
	source    lipgloss.Style
	good      lipgloss.Style
	bad       lipgloss.Style
	warn      lipgloss.Style
	muted     lipgloss.Style
}

// NewStatusHeader creates a new status header component
func NewStatusHeader(source string) *StatusHeader {
	palette := style.DefaultPalette()

	return &StatusHeader{
		source: source,
		style: statusHeaderStyle{
			container: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(palette.Primary).
				Padding(0, 1),

			title: lipgloss.NewStyle().
				Foreground(palette.Primary).
				Bold(true),

			source: lipgloss.NewStyle().
				Foreground(palette.TextSecondary),

			good: lipgloss.NewStyle().
				Foreground(palette.Success).
				Bold(true),

			bad: lipgloss.NewStyle().
				Foreground(palette.Error).
				Bold(true),

			warn: lipgloss.NewStyle().
				Foreground(palette.Warning).
				Bold(true),

			muted: lipgloss.NewStyle().
				Foreground(palette.TextMuted),
		},
	}
}

// SetStatus updates the displayed snapshot
func (sh *StatusHeader) SetStatus(status health.Status, at time.Time) {
	sh.status = status
	sh.lastRefresh = at
	sh.connected = true
}

// SetDisconnected marks the API as unreachable without dropping the last snapshot
func (sh *StatusHeader) SetDisconnected() {
	sh.connected = false
}

// SetWidth sets the component width for responsive layout
func (sh *StatusHeader) SetWidth(width int) {
	sh.width = width
	sh.style.container = sh.style.container.Width(width - 4)
}

// View renders the status header
func (sh *StatusHeader) View() string {
	parts := []string{
		sh.style.title.Render("SL/TP Monitor"),
		sh.style.source.Render(sh.source),
		sh.renderActive(),
		fmt.Sprintf("Positions: %d", sh.status.PositionsCount),
		sh.renderHealth(),
	}
	if !sh.lastRefresh.IsZero() {
		parts = append(parts, sh.style.muted.Render("Updated "+sh.lastRefresh.Format("15:04:05")))
	}

	content := parts[0]
	for _, p := range parts[1:] {
		content = lipgloss.JoinHorizontal(lipgloss.Left, content, " | ", p)
	}
	return sh.style.container.Render(content)
}

func (sh *StatusHeader) renderActive() string {
	switch {
	case !sh.connected && sh.lastRefresh.IsZero():
		return sh.style.muted.Render("Connecting...")
	case !sh.connected:
		return sh.style.bad.Render("🔴 API unreachable")
	case sh.status.Active:
		return sh.style.good.Render("🟢 Monitoring")
	default:
		return sh.style.warn.Render("⏸ Stopped")
	}
}

func (sh *StatusHeader) renderHealth() string {
	unhealthy := len(sh.status.Unhealthy())
	pending := len(sh.status.PendingCloses)
	if unhealthy == 0 && pending == 0 {
		return sh.style.good.Render("Health: OK")
	}
	return sh.style.bad.Render(fmt.Sprintf("Unhealthy: %d  Pending closes: %d", unhealthy, pending))
}

// GetHeight returns the component height for layout calculations
func (sh *StatusHeader) GetHeight() int {
	return 3 // Border + content
}
