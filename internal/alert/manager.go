// internal/alert/manager.go
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/events"
)

// Config holds alert configuration.
type Config struct {
	// Cooldown suppresses repeated close failure alerts for the same symbol.
	// Hits, closes and health transitions are one event each and always go out.
	Cooldown time.Duration
	// MaxAlerts bounds the in-memory history.
	MaxAlerts int
}

// DefaultConfig returns default alert configuration.
func DefaultConfig() Config {
	return Config{
		Cooldown:  5 * time.Minute,
		MaxAlerts: 1000,
	}
}

// Manager turns monitor events into alerts, applies the cooldown, keeps a
// bounded history and fans out to the sinks.
type Manager struct {
	mu     sync.RWMutex
	config Config
	logger *zap.Logger
	now    func() time.Time

	alerts       []Alert
	alertHistory map[string]time.Time // symbol|type -> last throttled alert time

	sinks []Sink
}

// NewManager creates a new alert manager.
func NewManager(config Config, logger *zap.Logger, sinks ...Sink) *Manager {
	if config.MaxAlerts <= 0 {
		config.MaxAlerts = 1000
	}
	return &Manager{
		config:       config,
		logger:       logger.Named("alerts"),
		now:          time.Now,
		alerts:       make([]Alert, 0, 100),
		alertHistory: make(map[string]time.Time),
		sinks:        sinks,
	}
}

// AddSink registers another sink.
func (m *Manager) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Attach subscribes the manager to every event on the bus.
func (m *Manager) Attach(bus *events.Bus) events.Subscription {
	return bus.Subscribe(events.All, m)
}

// Handle implements events.Handler.
func (m *Manager) Handle(ctx context.Context, event events.Event) error {
	a, ok := FromEvent(event)
	if !ok {
		return nil
	}
	return m.Trigger(ctx, a)
}

// Trigger records an alert and sends it to all sinks unless it is in cooldown.
func (m *Manager) Trigger(ctx context.Context, a Alert) error {
	sinks, ok := m.record(a)
	if !ok {
		m.logger.Debug("Alert suppressed by cooldown",
			zap.String("type", string(a.Type)),
			zap.String("symbol", a.Symbol))
		return nil
	}

	var errs []error
	for _, s := range sinks {
		if err := s.Send(ctx, a); err != nil {
			m.logger.Warn("Alert sink failed",
				zap.String("sink", s.Name()),
				zap.String("type", string(a.Type)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) record(a Alert) ([]Sink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if throttled(a.Type) {
		now := m.now()
		key := a.Symbol + "|" + string(a.Type)
		if last, exists := m.alertHistory[key]; exists && m.config.Cooldown > 0 {
			if now.Sub(last) < m.config.Cooldown {
				return nil, false
			}
		}
		m.alertHistory[key] = now
	}

	if len(m.alerts) >= m.config.MaxAlerts {
		m.alerts = m.alerts[1:]
	}
	m.alerts = append(m.alerts, a)

	sinks := make([]Sink, len(m.sinks))
	copy(sinks, m.sinks)
	return sinks, true
}

// throttled reports whether an alert type repeats per attempt rather than
// once per event.
func throttled(t AlertType) bool {
	return t == AlertTypeCloseFailed
}

// GetRecentAlerts returns the newest limit alerts, oldest first.
func (m *Manager) GetRecentAlerts(limit int) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.alerts) {
		limit = len(m.alerts)
	}

	result := make([]Alert, limit)
	copy(result, m.alerts[len(m.alerts)-limit:])
	return result
}

// GetAlertsBySymbol returns alerts for a specific symbol.
func (m *Manager) GetAlertsBySymbol(symbol string) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Alert
	for _, a := range m.alerts {
		if a.Symbol == symbol {
			result = append(result, a)
		}
	}
	return result
}

// ClearHistory clears the alert cooldown history.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertHistory = make(map[string]time.Time)
}
