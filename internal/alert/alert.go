// internal/alert/alert.go
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/events"
)

// AlertType represents different types of alerts
type AlertType string

const (
	AlertTypeHit            AlertType = "hit_detected"
	AlertTypeClosed         AlertType = "position_closed"
	AlertTypeCloseFailed    AlertType = "close_failed"
	AlertTypeCloseExhausted AlertType = "close_exhausted"
	AlertTypeCloseSkipped   AlertType = "close_skipped"
	AlertTypeDegraded       AlertType = "data_degraded"
	AlertTypeRecovered      AlertType = "data_recovered"
	AlertTypeLifecycle      AlertType = "monitor_lifecycle"
)

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is a human-facing notification derived from a monitor event.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol,omitempty"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Severity  string    `json:"severity"`

	Price     float64 `json:"price,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// Sink delivers alerts somewhere.
type Sink interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// Text renders the alert as a short plain-text message.
func (a Alert) Text() string {
	var b strings.Builder
	b.WriteString(severityIcon(a.Severity))
	b.WriteString(" ")
	b.WriteString(a.Message)
	if a.Details != "" {
		b.WriteString("\n")
		b.WriteString(a.Details)
	}
	b.WriteString("\n")
	b.WriteString(a.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

func severityIcon(severity string) string {
	switch severity {
	case SeverityCritical:
		return "🚨"
	case SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// FromEvent converts a monitor event into an alert. It returns false for
// events that do not warrant a notification.
func FromEvent(e events.Event) (Alert, bool) {
	a := Alert{
		ID:        e.ID(),
		Timestamp: e.Timestamp(),
		Symbol:    events.SymbolOf(e),
	}

	switch ev := e.(type) {
	case events.HitEvent:
		a.Type = AlertTypeHit
		a.Severity = SeverityWarning
		a.Message = fmt.Sprintf("%s %s hit on %s", ev.Result.Symbol, describeKind(ev.Result.Kind), ev.Position.Direction)
		a.Details = hitDetails(ev.Result)
		a.Price = ev.Result.Evidence.Price
		a.Threshold = ev.Result.Threshold

	case events.CloseEvent:
		a.Price = ev.Result.Evidence.Price
		a.Threshold = ev.Result.Threshold
		switch ev.Type() {
		case events.PositionClosed:
			a.Type = AlertTypeClosed
			a.Severity = SeverityInfo
			a.Message = fmt.Sprintf("%s closed on %s", ev.Symbol, describeKind(ev.Result.Kind))
			a.Details = fmt.Sprintf("%s (attempts: %d)", hitDetails(ev.Result), ev.Attempt)
		case events.CloseFailed:
			a.Type = AlertTypeCloseFailed
			a.Severity = SeverityWarning
			a.Message = fmt.Sprintf("%s close attempt %d failed", ev.Symbol, ev.Attempt)
			a.Details = ev.Error
		case events.CloseExhausted:
			a.Type = AlertTypeCloseExhausted
			a.Severity = SeverityCritical
			a.Message = fmt.Sprintf("%s could not be closed after %d attempts, still retrying", ev.Symbol, ev.Attempt)
			a.Details = ev.Error
		case events.CloseSkipped:
			a.Type = AlertTypeCloseSkipped
			a.Severity = SeverityInfo
			a.Message = fmt.Sprintf("%s was removed before the close ran", ev.Symbol)
		default:
			return Alert{}, false
		}

	case events.HealthEvent:
		if ev.Type() == events.HealthDegraded {
			a.Type = AlertTypeDegraded
			a.Severity = SeverityWarning
			a.Message = fmt.Sprintf("%s price data unavailable for %d cycles", ev.Symbol, ev.ConsecutiveFailures)
			a.Details = ev.LastError
		} else {
			a.Type = AlertTypeRecovered
			a.Severity = SeverityInfo
			a.Message = fmt.Sprintf("%s price data recovered", ev.Symbol)
		}

	case events.MonitoringEvent:
		a.Type = AlertTypeLifecycle
		a.Severity = SeverityInfo
		if ev.Type() == events.MonitoringStarted {
			a.Message = fmt.Sprintf("Monitoring started for %d symbols", len(ev.Symbols))
		} else {
			a.Message = "Monitoring stopped"
		}
		a.Details = strings.Join(ev.Symbols, ", ")

	default:
		return Alert{}, false
	}
	return a, true
}

func describeKind(k detector.Kind) string {
	switch k {
	case detector.KindStop:
		return "STOP LOSS"
	case detector.KindTarget:
		return "TAKE PROFIT"
	default:
		return string(k)
	}
}

func hitDetails(r detector.Result) string {
	via := "live price"
	if r.Method == detector.MethodWick {
		via = "candle wick"
	}
	return fmt.Sprintf("Level %g crossed by %s %g at %s",
		r.Threshold, via, r.Evidence.Price, r.Evidence.At.UTC().Format(time.RFC3339))
}
