// internal/metrics/collector.go
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/events"
	"github.com/vanlt3/LifeTime-Swing/internal/health"
)

const namespace = "sltp_monitor"

// StatusSource supplies the snapshot the gauges are read from.
type StatusSource interface {
	GetMonitoringStatus() health.Status
}

// Collector owns a private registry with the monitor's counters and
// gauges. Counters follow the event bus, gauges are read from the
// monitor status on every scrape.
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	hits          *prometheus.CounterVec
	closes        *prometheus.CounterVec
	closeFailures *prometheus.CounterVec
	health        *prometheus.CounterVec
	events        *prometheus.CounterVec
}

// NewCollector registers all metrics. status may be nil, then the gauges
// are omitted.
func NewCollector(status StatusSource, logger *zap.Logger) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logger.Named("metrics"),
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Stop and target crossings detected",
		}, []string{"symbol", "kind", "method"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closes_total",
			Help:      "Finished close decisions by outcome",
		}, []string{"outcome"}),
		closeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "close_failures_total",
			Help:      "Failed close attempts",
		}, []string{"symbol"}),
		health: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_transitions_total",
			Help:      "Data health transitions per symbol",
		}, []string{"symbol", "state"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events seen on the bus by type",
		}, []string{"type"}),
	}

	c.registry.MustRegister(
		c.hits,
		c.closes,
		c.closeFailures,
		c.health,
		c.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if status != nil {
		c.registerGauges(status)
	}
	return c
}

func (c *Collector) registerGauges(status StatusSource) {
	gauge := func(name, help string, value func(health.Status) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return value(status.GetMonitoringStatus())
		})
	}

	c.registry.MustRegister(
		gauge("monitoring_active", "1 while the monitoring loop runs", func(s health.Status) float64 {
			if s.Active {
				return 1
			}
			return 0
		}),
		gauge("positions", "Positions in the registry", func(s health.Status) float64 {
			return float64(s.PositionsCount)
		}),
		gauge("unhealthy_symbols", "Symbols whose data is failing or stale", func(s health.Status) float64 {
			return float64(len(s.Unhealthy()))
		}),
		gauge("pending_closes", "Symbols with a detected hit awaiting a successful close", func(s health.Status) float64 {
			return float64(len(s.PendingCloses))
		}),
	)
}

// Attach subscribes the collector to every event on bus.
func (c *Collector) Attach(bus *events.Bus) events.Subscription {
	return bus.Subscribe(events.All, c)
}

// Handle implements events.Handler.
func (c *Collector) Handle(_ context.Context, event events.Event) error {
	c.events.WithLabelValues(string(event.Type())).Inc()

	switch ev := event.(type) {
	case events.HitEvent:
		c.hits.WithLabelValues(ev.Result.Symbol, string(ev.Result.Kind), string(ev.Result.Method)).Inc()
	case events.CloseEvent:
		switch ev.Type() {
		case events.PositionClosed:
			c.closes.WithLabelValues("closed").Inc()
		case events.CloseExhausted:
			c.closes.WithLabelValues("exhausted").Inc()
		case events.CloseSkipped:
			c.closes.WithLabelValues("skipped").Inc()
		case events.CloseFailed:
			c.closeFailures.WithLabelValues(ev.Symbol).Inc()
		}
	case events.HealthEvent:
		state := "recovered"
		if ev.Type() == events.HealthDegraded {
			state = "degraded"
		}
		c.health.WithLabelValues(ev.Symbol, state).Inc()
	}
	return nil
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(c.logger),
		ErrorHandling: promhttp.ContinueOnError,
	})
}
