// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/events"
	"github.com/vanlt3/LifeTime-Swing/internal/health"
	"github.com/vanlt3/LifeTime-Swing/internal/market"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
	"github.com/vanlt3/LifeTime-Swing/internal/retry"
)

var (
	ErrAlreadyRunning = errors.New("monitor is already running")

	errClaimLost = errors.New("close claim lost")
)

// CloseFunc closes a position at the broker. It must be idempotent: the
// monitor may call it again for the same hit after a failure.
type CloseFunc func(ctx context.Context, symbol string, hit detector.Result) error

// EventPublisher receives monitor events. Publish must not block.
type EventPublisher interface {
	Publish(event events.Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.Event) error { return nil }

// Options wires a Monitor.
type Options struct {
	Config   Config
	Prices   market.PriceSource
	Candles  market.CandleSource
	Close    CloseFunc
	Events   EventPublisher
	Registry *position.Registry
	Logger   *zap.Logger

	// ID names this monitor in close claims on a shared registry.
	// Empty generates a random one.
	ID string

	// Clock and Sleeper are replaced in tests.
	Clock   func() time.Time
	Sleeper retry.Sleeper
}

// Monitor watches registered positions, one goroutine per symbol, and
// closes each position once when its stop or target is crossed.
type Monitor struct {
	id       string
	cfg      Config
	period   time.Duration
	prices   market.PriceSource
	candles  market.CandleSource
	close    CloseFunc
	events   EventPublisher
	registry *position.Registry
	health   *health.Tracker
	logger   *zap.Logger
	now      func() time.Time
	sleep    retry.Sleeper

	mu      sync.Mutex
	run     *run
	pending map[string]pendingClose
}

// pendingClose is a hit whose close ran out of attempts while this monitor
// still holds the claim.
type pendingClose struct {
	claim position.Claim
	hit   detector.Result
}

// run is one StartMonitoring..StopMonitoring lifetime.
type run struct {
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	wake     chan struct{}
	done     chan struct{}
	stopping bool // guarded by Monitor.mu

	mu      sync.Mutex
	workers map[string]struct{}
}

func (r *run) symbols() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.workers))
	for s := range r.workers {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// New creates a monitor.
func New(opts Options) (*Monitor, error) {
	if opts.Prices == nil {
		return nil, errors.New("monitor: price source is required")
	}
	if opts.Close == nil {
		return nil, errors.New("monitor: close callback is required")
	}
	if opts.Config.WickDetection && opts.Candles == nil {
		return nil, errors.New("monitor: wick detection needs a candle source")
	}
	if err := opts.Config.validate(); err != nil {
		return nil, fmt.Errorf("monitor: invalid config: %w", err)
	}

	m := &Monitor{
		id:       opts.ID,
		cfg:      opts.Config,
		prices:   opts.Prices,
		candles:  opts.Candles,
		close:    opts.Close,
		events:   opts.Events,
		registry: opts.Registry,
		logger:   opts.Logger,
		now:      opts.Clock,
		sleep:    opts.Sleeper,
		pending:  make(map[string]pendingClose),
	}
	if m.id == "" {
		m.id = uuid.New().String()
	}
	if m.cfg.WickDetection {
		m.period, _ = market.TimeframeDuration(m.cfg.Timeframe)
	}
	if m.events == nil {
		m.events = noopPublisher{}
	}
	if m.registry == nil {
		m.registry = position.NewRegistry()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("monitor").With(zap.String("monitor_id", m.id))
	if m.now == nil {
		m.now = time.Now
	}
	if m.sleep == nil {
		m.sleep = retry.SleepContext
	}
	m.health = health.NewTracker(health.Config{
		UnhealthyAfter: m.cfg.UnhealthyAfter,
		StaleAfter:     m.cfg.staleAfter(),
	})

	return m, nil
}

// Registry returns the registry the monitor reads from.
func (m *Monitor) Registry() *position.Registry {
	return m.registry
}

// StartMonitoring seeds the registry and starts watching every registered
// symbol. Invalid positions are logged and skipped. Symbols added later
// through Track or the registry are picked up on the next tick.
func (m *Monitor) StartMonitoring(ctx context.Context, positions []position.Position) error {
	m.mu.Lock()
	if r := m.run; r != nil {
		if r.stopping || r.ctx.Err() == nil {
			m.mu.Unlock()
			return ErrAlreadyRunning
		}
		// the parent context ended without StopMonitoring; reap the old run
		m.mu.Unlock()
		m.StopMonitoring()
		m.mu.Lock()
		if m.run != nil {
			m.mu.Unlock()
			return ErrAlreadyRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	r := &run{
		ctx:     runCtx,
		cancel:  cancel,
		group:   g,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		workers: make(map[string]struct{}),
	}
	m.run = r
	m.mu.Unlock()

	for _, p := range positions {
		if err := m.registry.Add(p); err != nil {
			m.logger.Warn("⚠️ Skipping invalid position",
				zap.String("symbol", p.Symbol),
				zap.Error(err))
		}
	}

	symbols := m.registry.Symbols()
	m.logger.Info("🚀 Monitoring started",
		zap.Int("positions", len(symbols)),
		zap.Duration("interval", m.cfg.TickInterval),
		zap.Bool("wick_detection", m.cfg.WickDetection))

	g.Go(func() error {
		m.supervise(gctx, r)
		return nil
	})

	m.publish(events.MonitoringEvent{
		BaseEvent: events.NewBaseEvent(events.MonitoringStarted, m.now()),
		Symbols:   symbols,
	})
	return nil
}

// StopMonitoring stops all symbol tasks and waits for them. A fetch in flight
// finishes or times out; a close in flight runs to completion. Safe to call
// more than once and concurrently.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	r := m.run
	if r == nil {
		m.mu.Unlock()
		return
	}
	if r.stopping {
		m.mu.Unlock()
		<-r.done
		return
	}
	r.stopping = true
	m.mu.Unlock()

	m.logger.Info("🛑 Stopping monitoring")
	start := time.Now()

	r.cancel()
	_ = r.group.Wait()

	m.mu.Lock()
	m.run = nil
	m.mu.Unlock()
	close(r.done)

	m.logger.Info("Monitoring stopped", zap.Duration("took", time.Since(start)))
	m.publish(events.MonitoringEvent{
		BaseEvent: events.NewBaseEvent(events.MonitoringStopped, m.now()),
		Symbols:   m.registry.Symbols(),
	})
}

// Track adds or updates a position and wakes the supervisor.
func (m *Monitor) Track(p position.Position) error {
	if err := m.registry.Add(p); err != nil {
		return err
	}
	m.wake()
	return nil
}

// Untrack removes a position. Its task exits on its next cycle.
func (m *Monitor) Untrack(symbol string) bool {
	removed := m.registry.Remove(symbol)
	if removed {
		symbol = position.NormalizeSymbol(symbol)
		m.clearPending(symbol)
		m.health.Forget(symbol)
		m.wake()
	}
	return removed
}

// Positions returns the registered positions sorted by symbol.
func (m *Monitor) Positions() []position.Position {
	return m.registry.List()
}

// UpdateLevels replaces the stop and target of a tracked position.
func (m *Monitor) UpdateLevels(symbol string, stop, target float64) (position.Position, error) {
	return m.registry.UpdateLevels(symbol, stop, target)
}

// Check runs one detection for symbol without closing anything.
func (m *Monitor) Check(ctx context.Context, symbol string) (detector.Result, error) {
	pos, ok := m.registry.Get(symbol)
	if !ok {
		return detector.Result{}, fmt.Errorf("%w: %s", position.ErrNotFound, symbol)
	}
	return m.detect(ctx, pos)
}

// GetMonitoringStatus returns a health snapshot.
func (m *Monitor) GetMonitoringStatus() health.Status {
	st := m.health.Status(m.now())

	m.mu.Lock()
	r := m.run
	active := r != nil && !r.stopping && r.ctx.Err() == nil
	m.mu.Unlock()

	st.Active = active
	st.PositionsCount = m.registry.Len()
	if active {
		st.Symbols = r.symbols()
	} else {
		st.Symbols = []string{}
	}
	return st
}

func (m *Monitor) wake() {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()
	if r == nil {
		return
	}
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// supervise starts a task for every registered symbol that has none, on
// start, on every tick and whenever woken.
func (m *Monitor) supervise(ctx context.Context, r *run) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		m.reconcile(ctx, r)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context, r *run) {
	for _, symbol := range m.registry.Symbols() {
		if ctx.Err() != nil {
			return
		}

		r.mu.Lock()
		_, running := r.workers[symbol]
		if !running {
			r.workers[symbol] = struct{}{}
		}
		r.mu.Unlock()

		if running {
			continue
		}
		symbol := symbol
		r.group.Go(func() error {
			m.watch(ctx, r, symbol)
			return nil
		})
	}
}

func (m *Monitor) watch(ctx context.Context, r *run, symbol string) {
	defer func() {
		r.mu.Lock()
		delete(r.workers, symbol)
		r.mu.Unlock()
	}()

	m.health.Track(symbol, m.now())
	m.logger.Info("👀 Watching symbol", zap.String("symbol", symbol))

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if done := m.cycle(ctx, symbol); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) publish(e events.Event) {
	if err := m.events.Publish(e); err != nil {
		m.logger.Debug("Event not published",
			zap.String("event_type", string(e.Type())),
			zap.Error(err))
	}
}

// ID returns the owner name this monitor writes into close claims.
func (m *Monitor) ID() string {
	return m.id
}

func (m *Monitor) claimFor(pos position.Position) position.Claim {
	return position.Claim{Symbol: pos.Symbol, Generation: pos.Generation, Owner: m.id}
}

func (m *Monitor) pendingFor(symbol string) (pendingClose, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.pending[symbol]
	return pc, ok
}

func (m *Monitor) setPending(claim position.Claim, hit detector.Result) {
	m.mu.Lock()
	m.pending[claim.Symbol] = pendingClose{claim: claim, hit: hit}
	m.mu.Unlock()
	m.health.SetPendingClose(claim.Symbol, true, m.now())
}

func (m *Monitor) clearPending(symbol string) {
	m.mu.Lock()
	_, ok := m.pending[symbol]
	delete(m.pending, symbol)
	m.mu.Unlock()
	if ok {
		m.health.SetPendingClose(symbol, false, m.now())
	}
}
