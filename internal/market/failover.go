// internal/market/failover.go
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// NamedPriceSource pairs a provider with the name used in errors and logs.
type NamedPriceSource struct {
	Name   string
	Source PriceSource
}

// NamedCandleSource pairs a candle provider with its name.
type NamedCandleSource struct {
	Name   string
	Source CandleSource
}

// Failover queries price providers in priority order and returns the first
// usable answer. The whole call is bounded by timeout.
type Failover struct {
	providers []NamedPriceSource
	timeout   time.Duration
	logger    *zap.Logger
}

// NewFailover creates a failover price source.
func NewFailover(timeout time.Duration, logger *zap.Logger, providers ...NamedPriceSource) *Failover {
	return &Failover{
		providers: providers,
		timeout:   timeout,
		logger:    logger.Named("price_failover"),
	}
}

// Providers returns the provider names in priority order.
func (f *Failover) Providers() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name
	}
	return names
}

// GetPrice implements PriceSource.
func (f *Failover) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return firstSuccess(ctx, f.timeout, f.logger, symbol, len(f.providers),
		func(i int) string { return f.providers[i].Name },
		func(ctx context.Context, i int) (float64, error) {
			price, err := f.providers[i].Source.GetPrice(ctx, symbol)
			if err != nil {
				return 0, err
			}
			if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
				return 0, fmt.Errorf("unusable price %v", price)
			}
			return price, nil
		})
}

// FailoverCandles mirrors Failover for candle providers.
type FailoverCandles struct {
	providers []NamedCandleSource
	timeout   time.Duration
	logger    *zap.Logger
}

// NewFailoverCandles creates a failover candle source.
func NewFailoverCandles(timeout time.Duration, logger *zap.Logger, providers ...NamedCandleSource) *FailoverCandles {
	return &FailoverCandles{
		providers: providers,
		timeout:   timeout,
		logger:    logger.Named("candle_failover"),
	}
}

// GetRecentCandles implements CandleSource.
func (f *FailoverCandles) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error) {
	return firstSuccess(ctx, f.timeout, f.logger, symbol, len(f.providers),
		func(i int) string { return f.providers[i].Name },
		func(ctx context.Context, i int) ([]Candle, error) {
			candles, err := f.providers[i].Source.GetRecentCandles(ctx, symbol, timeframe, count)
			if err != nil {
				return nil, err
			}
			if len(candles) == 0 {
				return nil, errors.New("no candles returned")
			}
			return candles, nil
		})
}

func firstSuccess[T any](
	ctx context.Context,
	timeout time.Duration,
	logger *zap.Logger,
	symbol string,
	n int,
	name func(int) string,
	call func(context.Context, int) (T, error),
) (T, error) {
	var zero T
	if n == 0 {
		return zero, Unavailable("failover", symbol, errors.New("no providers configured"))
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	errs := make([]error, 0, n)
	allPermanent := true
	for i := 0; i < n; i++ {
		v, err := call(ctx, i)
		if err == nil {
			if i > 0 {
				logger.Debug("Served by fallback provider",
					zap.String("symbol", symbol),
					zap.String("provider", name(i)))
			}
			return v, nil
		}

		err = Classify(name(i), symbol, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, stripPermanent(err))
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return zero, Timeout("failover", symbol, errors.Join(errs...))
			}
			// cancelled by the caller, not a slow provider
			return zero, Unavailable("failover", symbol, errors.Join(append(errs, ctxErr)...))
		}

		logger.Debug("Provider failed",
			zap.String("symbol", symbol),
			zap.String("provider", name(i)),
			zap.Error(err))

		if !IsPermanent(err) {
			allPermanent = false
		}
		errs = append(errs, err)
	}

	for i := range errs {
		errs[i] = stripPermanent(errs[i])
	}
	result := Unavailable("failover", symbol, errors.Join(errs...))
	if allPermanent {
		return zero, backoff.Permanent(result)
	}
	return zero, result
}
