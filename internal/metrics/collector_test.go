package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/events"
	"github.com/vanlt3/LifeTime-Swing/internal/health"
)

type fixedStatus struct {
	status health.Status
}

func (f fixedStatus) GetMonitoringStatus() health.Status { return f.status }

var at = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestCollectorCountsBusEvents(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := NewCollector(nil, logger)
	bus := events.NewBus(logger, 16, time.Second)
	defer bus.Shutdown(context.Background())
	c.Attach(bus)

	ctx := context.Background()
	hit := detector.Result{Symbol: "XAUUSD", Kind: detector.KindStop, Method: detector.MethodWick, Threshold: 2300}
	published := []events.Event{
		events.HitEvent{BaseEvent: events.NewBaseEvent(events.HitDetected, at), Result: hit},
		events.CloseEvent{BaseEvent: events.NewBaseEvent(events.CloseFailed, at), Symbol: "XAUUSD", Result: hit, Attempt: 1},
		events.CloseEvent{BaseEvent: events.NewBaseEvent(events.PositionClosed, at), Symbol: "XAUUSD", Result: hit, Attempt: 2},
		events.HealthEvent{BaseEvent: events.NewBaseEvent(events.HealthDegraded, at), Symbol: "BTCUSDT", ConsecutiveFailures: 3},
		events.HealthEvent{BaseEvent: events.NewBaseEvent(events.HealthRecovered, at), Symbol: "BTCUSDT"},
	}
	for _, e := range published {
		require.NoError(t, bus.PublishSync(ctx, e))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(c.hits.WithLabelValues("XAUUSD", "STOP", "WICK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.closeFailures.WithLabelValues("XAUUSD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.closes.WithLabelValues("closed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.closes.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.health.WithLabelValues("BTCUSDT", "degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.health.WithLabelValues("BTCUSDT", "recovered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues(string(events.CloseFailed))))
	assert.Equal(t, 5, testutil.CollectAndCount(c.events))
}

func TestCollectorGaugesReadStatus(t *testing.T) {
	status := fixedStatus{status: health.Status{
		Active:         true,
		PositionsCount: 3,
		Health: map[string]health.SymbolHealth{
			"XAUUSD":  {Symbol: "XAUUSD", Healthy: true},
			"BTCUSDT": {Symbol: "BTCUSDT", Healthy: false},
			"EURUSD":  {Symbol: "EURUSD", Healthy: false, Stale: true},
		},
		PendingCloses: []string{"BTCUSDT"},
	}}
	c := NewCollector(status, zaptest.NewLogger(t))

	expected := `
# HELP sltp_monitor_positions Positions in the registry
# TYPE sltp_monitor_positions gauge
sltp_monitor_positions 3
# HELP sltp_monitor_unhealthy_symbols Symbols whose data is failing or stale
# TYPE sltp_monitor_unhealthy_symbols gauge
sltp_monitor_unhealthy_symbols 2
# HELP sltp_monitor_pending_closes Symbols with a detected hit awaiting a successful close
# TYPE sltp_monitor_pending_closes gauge
sltp_monitor_pending_closes 1
# HELP sltp_monitor_monitoring_active 1 while the monitoring loop runs
# TYPE sltp_monitor_monitoring_active gauge
sltp_monitor_monitoring_active 1
`
	err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"sltp_monitor_positions",
		"sltp_monitor_unhealthy_symbols",
		"sltp_monitor_pending_closes",
		"sltp_monitor_monitoring_active")
	require.NoError(t, err)
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector(nil, zaptest.NewLogger(t))
	require.NoError(t, c.Handle(context.Background(), events.CloseEvent{
		BaseEvent: events.NewBaseEvent(events.CloseExhausted, at),
		Symbol:    "XAUUSD",
		Attempt:   5,
	}))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `sltp_monitor_closes_total{outcome="exhausted"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
	assert.NotContains(t, string(body), "sltp_monitor_positions")
}
