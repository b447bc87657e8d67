// internal/ui/dashboard.go
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/vanlt3/LifeTime-Swing/internal/alert"
	"github.com/vanlt3/LifeTime-Swing/internal/health"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
	"github.com/vanlt3/LifeTime-Swing/internal/ui/component"
	"github.com/vanlt3/LifeTime-Swing/internal/ui/style"
)

// Source is what the dashboard polls. api.Client implements it.
type Source interface {
	Status(ctx context.Context) (health.Status, error)
	Positions(ctx context.Context) ([]position.Position, error)
	Alerts(ctx context.Context, limit int) ([]alert.Alert, error)
}

// Pane identifies the focused table.
type Pane int

const (
	PanePositions Pane = iota
	PaneAlerts
)

const (
	alertLimit   = 50
	defaultWidth = 120
)

// Dashboard is the monitor TUI model.
type Dashboard struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	keys      KeyMap
	help      help.Model
	header    *component.StatusHeader
	positions table.Model
	alerts    table.Model
	focus     Pane

	snapshot SnapshotMsg
	err      error
	width    int
	height   int
}

// NewDashboard creates a dashboard polling source every interval.
// sourceName is shown in the header.
func NewDashboard(source Source, sourceName string, interval time.Duration) *Dashboard {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	positions := table.New(
		table.WithColumns(positionColumns()),
		table.WithFocused(true),
		table.WithHeight(8),
		table.WithWidth(defaultWidth),
	)
	alerts := table.New(
		table.WithColumns(alertColumns()),
		table.WithHeight(8),
		table.WithWidth(defaultWidth),
	)
	styles := tableStyles()
	positions.SetStyles(styles)
	alerts.SetStyles(styles)

	return &Dashboard{
		source:    source,
		interval:  interval,
		timeout:   5 * time.Second,
		now:       time.Now,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		header:    component.NewStatusHeader(sourceName),
		positions: positions,
		alerts:    alerts,
		focus:     PanePositions,
	}
}

func positionColumns() []table.Column {
	return []table.Column{
		{Title: "Symbol", Width: 10},
		{Title: "Dir", Width: 6},
		{Title: "Entry", Width: 11},
		{Title: "Stop", Width: 11},
		{Title: "Target", Width: 11},
		{Title: "State", Width: 8},
		{Title: "Health", Width: 14},
		{Title: "Last error", Width: 30},
	}
}

func alertColumns() []table.Column {
	return []table.Column{
		{Title: "Time", Width: 9},
		{Title: "Severity", Width: 9},
		{Title: "Type", Width: 18},
		{Title: "Symbol", Width: 10},
		{Title: "Message", Width: 48},
	}
}

func tableStyles() table.Styles {
	palette := style.DefaultPalette()
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(palette.TextMuted).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(palette.Background).
		Background(palette.Primary).
		Bold(false)
	return s
}

// Init starts polling.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.fetch(), d.tick())
}

// Update handles messages.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.resize(msg.Width, msg.Height)
		return d, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, d.keys.Quit):
			return d, tea.Quit
		case key.Matches(msg, d.keys.Refresh):
			return d, d.fetch()
		case key.Matches(msg, d.keys.Tab):
			d.toggleFocus()
			return d, nil
		case key.Matches(msg, d.keys.Help):
			d.help.ShowAll = !d.help.ShowAll
			return d, nil
		}

	case TickMsg:
		return d, tea.Batch(d.fetch(), d.tick())

	case SnapshotMsg:
		d.apply(msg)
		return d, nil

	case ErrMsg:
		d.err = msg.Err
		d.header.SetDisconnected()
		return d, nil
	}

	var cmd tea.Cmd
	if d.focus == PanePositions {
		d.positions, cmd = d.positions.Update(msg)
	} else {
		d.alerts, cmd = d.alerts.Update(msg)
	}
	return d, cmd
}

// View renders the dashboard.
func (d *Dashboard) View() string {
	sections := []string{
		d.header.View(),
		d.paneTitle(PanePositions, fmt.Sprintf("Positions (%d)", len(d.snapshot.Positions))),
		d.positions.View(),
		d.paneTitle(PaneAlerts, fmt.Sprintf("Recent alerts (%d)", len(d.snapshot.Alerts))),
		d.alerts.View(),
	}
	if banner := d.criticalBanner(); banner != "" {
		sections = append(sections, banner)
	}
	if d.err != nil {
		sections = append(sections, style.ErrorText.Render("⚠️ "+d.err.Error()))
	}
	sections = append(sections, d.help.View(d.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// Focus returns the focused pane.
func (d *Dashboard) Focus() Pane {
	return d.focus
}

func (d *Dashboard) fetch() tea.Cmd {
	source, timeout, now := d.source, d.timeout, d.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		status, err := source.Status(ctx)
		if err != nil {
			return ErrMsg{Err: fmt.Errorf("status: %w", err)}
		}
		positions, err := source.Positions(ctx)
		if err != nil {
			return ErrMsg{Err: fmt.Errorf("positions: %w", err)}
		}
		alerts, err := source.Alerts(ctx, alertLimit)
		if err != nil {
			return ErrMsg{Err: fmt.Errorf("alerts: %w", err)}
		}
		return SnapshotMsg{Status: status, Positions: positions, Alerts: alerts, FetchedAt: now()}
	}
}

func (d *Dashboard) tick() tea.Cmd {
	return tea.Tick(d.interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (d *Dashboard) apply(s SnapshotMsg) {
	d.snapshot = s
	d.err = nil
	d.header.SetStatus(s.Status, s.FetchedAt)
	d.positions.SetRows(positionRows(s.Positions, s.Status))
	d.alerts.SetRows(alertRows(s.Alerts))
}

func positionRows(positions []position.Position, status health.Status) []table.Row {
	rows := make([]table.Row, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, table.Row{
			p.Symbol,
			string(p.Direction),
			formatPrice(p.EntryPrice),
			formatPrice(p.StopPrice),
			formatPrice(p.TargetPrice),
			string(p.State),
			healthLabel(status.Health[p.Symbol]),
			status.Health[p.Symbol].LastError,
		})
	}
	return rows
}

// Newest first.
func alertRows(alerts []alert.Alert) []table.Row {
	rows := make([]table.Row, 0, len(alerts))
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		rows = append(rows, table.Row{
			a.Timestamp.Local().Format("15:04:05"),
			a.Severity,
			string(a.Type),
			a.Symbol,
			a.Message,
		})
	}
	return rows
}

func healthLabel(h health.SymbolHealth) string {
	switch {
	case h.Symbol == "":
		return "-"
	case h.PendingClose:
		return "close pending"
	case h.Stale:
		return "stale"
	case !h.Healthy:
		return "failing (" + strconv.Itoa(h.ConsecutiveFailures) + ")"
	default:
		return "ok"
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// criticalBanner highlights the newest critical alert.
func (d *Dashboard) criticalBanner() string {
	for i := len(d.snapshot.Alerts) - 1; i >= 0; i-- {
		a := d.snapshot.Alerts[i]
		if a.Severity != alert.SeverityCritical {
			continue
		}
		color := style.DefaultPalette().SeverityColor(a.Severity)
		return lipgloss.NewStyle().Foreground(color).Bold(true).
			Render(strings.TrimSpace(a.Text()))
	}
	return ""
}

func (d *Dashboard) paneTitle(pane Pane, title string) string {
	if pane == d.focus {
		return style.FocusedPaneTitle.Render("▶ " + title)
	}
	return style.PaneTitle.Render("  " + title)
}

func (d *Dashboard) toggleFocus() {
	if d.focus == PanePositions {
		d.focus = PaneAlerts
		d.positions.Blur()
		d.alerts.Focus()
		return
	}
	d.focus = PanePositions
	d.alerts.Blur()
	d.positions.Focus()
}

func (d *Dashboard) resize(width, height int) {
	d.width, d.height = width, height
	d.header.SetWidth(width)
	d.help.Width = width

	// header, two pane titles, help and the error line
	available := height - d.header.GetHeight() - 6
	if available < 6 {
		available = 6
	}
	d.positions.SetHeight(available / 2)
	d.alerts.SetHeight(available - available/2)
	d.positions.SetWidth(width)
	d.alerts.SetWidth(width)
}
