// internal/monitor/cycle.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/events"
	"github.com/vanlt3/LifeTime-Swing/internal/market"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
	"github.com/vanlt3/LifeTime-Swing/internal/retry"
)

// cycle runs one check of symbol. It returns true when the task should end.
func (m *Monitor) cycle(ctx context.Context, symbol string) bool {
	if ctx.Err() != nil {
		return true
	}
	logger := m.logger.With(zap.String("symbol", symbol))

	pos, ok := m.registry.Get(symbol)
	if !ok {
		logger.Info("Position no longer registered, stopping watch")
		m.clearPending(symbol)
		m.health.Forget(symbol)
		return true
	}

	if pc, ok := m.pendingFor(symbol); ok {
		if pc.claim.Generation == pos.Generation {
			logger.Info("🔁 Retrying pending close", zap.String("kind", string(pc.hit.Kind)))
			return m.closePosition(ctx, pc.claim, pc.hit)
		}
		// the hit belonged to a position that was removed and added again
		m.clearPending(symbol)
	}

	if pos.State == position.Closing {
		if pos.ClaimedBy == m.id {
			logger.Warn("Releasing own close claim with no pending hit")
			m.registry.AbortClose(m.claimFor(pos))
			pos.State = position.Active
		} else {
			reclaimed, ok := m.registry.ReclaimStale(symbol, m.cfg.claimLease(), m.now())
			if !ok {
				logger.Debug("Close in progress elsewhere", zap.String("owner", pos.ClaimedBy))
				return false
			}
			logger.Warn("Took over stale close claim",
				zap.String("owner", pos.ClaimedBy),
				zap.Time("claimed_at", pos.ClaimedAt))
			pos = reclaimed
		}
	}

	hit, err := m.detect(ctx, pos)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		m.recordFailure(symbol, err)
		return false
	}
	m.recordSuccess(symbol)

	if !hit.Hit() {
		return false
	}
	return m.onHit(ctx, pos, hit)
}

// detect fetches the live price and, when it shows nothing, scans recent candles.
func (m *Monitor) detect(ctx context.Context, pos position.Position) (detector.Result, error) {
	price, err := fetch(ctx, m, pos.Symbol, "price", func(ctx context.Context) (float64, error) {
		p, err := m.prices.GetPrice(ctx, pos.Symbol)
		if err != nil {
			return 0, err
		}
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, market.Unavailable("monitor", pos.Symbol, fmt.Errorf("unusable price %v", p))
		}
		return p, nil
	})
	if err != nil {
		return detector.Result{Symbol: pos.Symbol}, fmt.Errorf("fetch price: %w", err)
	}

	if res := detector.DetectPriceHit(pos, price, m.now()); res.Hit() || !m.cfg.WickDetection {
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return detector.Result{Symbol: pos.Symbol}, err
	}

	candles, err := fetch(ctx, m, pos.Symbol, "candles", func(ctx context.Context) ([]market.Candle, error) {
		return m.candles.GetRecentCandles(ctx, pos.Symbol, m.cfg.Timeframe, m.cfg.WickCandles)
	})
	if err != nil {
		return detector.Result{Symbol: pos.Symbol}, fmt.Errorf("fetch candles: %w", err)
	}

	candles = market.CandlesSince(market.LastN(candles, m.cfg.WickCandles), pos.OpenedAt, m.period)
	return detector.DetectWickHit(pos, candles, m.now()), nil
}

// fetch retries a market data call. Each attempt runs on a context detached
// from monitor shutdown and bounded by FetchTimeout; waits between attempts
// end as soon as ctx is done.
func fetch[T any](ctx context.Context, m *Monitor, symbol, what string, call func(context.Context) (T, error)) (T, error) {
	v, _, err := retry.Do(ctx, m.cfg.FetchRetry, func(ctx context.Context, attempt int) (T, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.FetchTimeout)
		defer cancel()

		v, err := call(callCtx)
		if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, market.ErrTimeout) {
			err = market.Timeout("monitor", symbol, err)
		}
		return v, err
	},
		retry.WithSleeper(m.sleep),
		retry.WithNotify(func(attempt int, err error, next time.Duration) {
			m.logger.Debug("Fetch failed, retrying",
				zap.String("symbol", symbol),
				zap.String("what", what),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", next),
				zap.Error(err))
		}),
	)
	return v, err
}

func (m *Monitor) recordFailure(symbol string, err error) {
	degraded := m.health.RecordFailure(symbol, err, m.now())
	h, _ := m.health.Symbol(symbol, m.now())

	m.logger.Warn("⚠️ Cycle skipped, market data unavailable",
		zap.String("symbol", symbol),
		zap.Int("failure_streak", h.ConsecutiveFailures),
		zap.Error(err))

	if degraded {
		m.publish(events.HealthEvent{
			BaseEvent:           events.NewBaseEvent(events.HealthDegraded, m.now()),
			Symbol:              symbol,
			ConsecutiveFailures: h.ConsecutiveFailures,
			LastError:           err.Error(),
		})
	}
}

func (m *Monitor) recordSuccess(symbol string) {
	if m.health.RecordSuccess(symbol, m.now()) {
		m.logger.Info("Market data recovered", zap.String("symbol", symbol))
		m.publish(events.HealthEvent{
			BaseEvent: events.NewBaseEvent(events.HealthRecovered, m.now()),
			Symbol:    symbol,
		})
	}
}

// onHit publishes the hit and claims the position before closing it.
func (m *Monitor) onHit(ctx context.Context, pos position.Position, hit detector.Result) bool {
	symbol := pos.Symbol
	m.logger.Warn("🎯 Threshold hit detected",
		zap.String("symbol", symbol),
		zap.String("kind", string(hit.Kind)),
		zap.String("method", string(hit.Method)),
		zap.Float64("threshold", hit.Threshold),
		zap.Float64("observed", hit.Evidence.Price),
		zap.Time("observed_at", hit.Evidence.At))

	m.publish(events.HitEvent{
		BaseEvent: events.NewBaseEvent(events.HitDetected, m.now()),
		Position:  pos,
		Result:    hit,
	})

	claim := m.claimFor(pos)
	if _, ok := m.registry.BeginClose(claim, m.now()); !ok {
		current, ok := m.registry.Get(symbol)
		switch {
		case !ok:
			m.skipClose(symbol, hit, "Position removed before close, skipping")
			m.health.Forget(symbol)
			return true
		case current.Generation != claim.Generation:
			m.skipClose(symbol, hit, "Position replaced before close, skipping stale hit")
			return false
		default:
			m.logger.Info("Close already in progress elsewhere",
				zap.String("symbol", symbol),
				zap.String("owner", current.ClaimedBy))
			return false
		}
	}
	return m.closePosition(ctx, claim, hit)
}

// closePosition invokes the close callback with retries. Every attempt first
// renews the claim, so a removed, replaced or taken over position is never
// closed.
func (m *Monitor) closePosition(ctx context.Context, claim position.Claim, hit detector.Result) bool {
	symbol := claim.Symbol
	logger := m.logger.With(zap.String("symbol", symbol))

	_, attempts, err := retry.Do(ctx, m.cfg.CloseRetry, func(ctx context.Context, attempt int) (struct{}, error) {
		if !m.registry.RenewClose(claim, m.now()) {
			return struct{}{}, retry.Permanent(errClaimLost)
		}

		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CloseTimeout)
		defer cancel()

		if err := m.close(callCtx, symbol, hit); err != nil {
			logger.Warn("Close attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			m.publish(events.CloseEvent{
				BaseEvent: events.NewBaseEvent(events.CloseFailed, m.now()),
				Symbol:    symbol,
				Result:    hit,
				Attempt:   attempt,
				Error:     err.Error(),
			})
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, retry.WithSleeper(m.sleep))

	switch {
	case err == nil:
		removed := m.registry.RemoveIf(symbol, claim.Generation)
		m.clearPending(symbol)

		logger.Info("✅ Position closed",
			zap.String("kind", string(hit.Kind)),
			zap.String("method", string(hit.Method)),
			zap.Int("attempts", attempts))
		m.publish(events.CloseEvent{
			BaseEvent: events.NewBaseEvent(events.PositionClosed, m.now()),
			Symbol:    symbol,
			Result:    hit,
			Attempt:   attempts,
		})
		if !removed && m.registry.Contains(symbol) {
			logger.Info("Position re-added during close, keeping watch")
			return false
		}
		m.health.Forget(symbol)
		return true

	case errors.Is(err, errClaimLost):
		current, ok := m.registry.Get(symbol)
		switch {
		case !ok:
			m.skipClose(symbol, hit, "Position removed before close, skipping")
			m.health.Forget(symbol)
			return true
		case current.Generation != claim.Generation:
			m.skipClose(symbol, hit, "Position replaced before close, skipping stale hit")
			return false
		default:
			logger.Warn("Close claim taken over by another monitor",
				zap.String("owner", current.ClaimedBy),
				zap.Int("attempts", attempts))
			m.clearPending(symbol)
			return false
		}

	default:
		m.setPending(claim, hit)
		if ctx.Err() != nil {
			logger.Warn("Close interrupted by shutdown, left pending", zap.Int("attempts", attempts), zap.Error(err))
		} else {
			logger.Error("🚨 Close retries exhausted, retrying next cycle", zap.Int("attempts", attempts), zap.Error(err))
		}
		m.publish(events.CloseEvent{
			BaseEvent: events.NewBaseEvent(events.CloseExhausted, m.now()),
			Symbol:    symbol,
			Result:    hit,
			Attempt:   attempts,
			Error:     err.Error(),
		})
		return false
	}
}

func (m *Monitor) skipClose(symbol string, hit detector.Result, msg string) {
	m.logger.Info(msg, zap.String("symbol", symbol))
	m.clearPending(symbol)
	m.publish(events.CloseEvent{
		BaseEvent: events.NewBaseEvent(events.CloseSkipped, m.now()),
		Symbol:    symbol,
		Result:    hit,
	})
}
