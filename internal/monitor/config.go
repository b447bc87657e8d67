// internal/monitor/config.go
package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/vanlt3/LifeTime-Swing/internal/market"
	"github.com/vanlt3/LifeTime-Swing/internal/retry"
)

// Config controls the monitoring cycle.
type Config struct {
	// TickInterval is the pause between two cycles of the same symbol.
	TickInterval time.Duration
	// WickDetection enables the candle scan when the live price shows no hit.
	WickDetection bool
	// WickCandles is how many recent candles are scanned.
	WickCandles int
	// Timeframe of the scanned candles, e.g. "1h".
	Timeframe string

	FetchTimeout time.Duration
	FetchRetry   retry.Policy

	CloseTimeout time.Duration
	CloseRetry   retry.Policy
	// ClaimLease is how long a CLOSING position may go without its owner
	// renewing the claim before another monitor takes it over. Zero derives
	// it from the close timeout, the close backoff and the tick interval.
	ClaimLease time.Duration

	// UnhealthyAfter consecutive failed cycles mark a symbol unhealthy.
	UnhealthyAfter int
	// StaleAfter marks a symbol unhealthy when no cycle succeeded for this
	// long. Zero means three tick intervals.
	StaleAfter time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:  30 * time.Second,
		WickDetection: true,
		WickCandles:   3,
		Timeframe:     "1h",
		FetchTimeout:  10 * time.Second,
		FetchRetry: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Jitter:      0.2,
		},
		CloseTimeout: 15 * time.Second,
		CloseRetry: retry.Policy{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      0.2,
		},
		UnhealthyAfter: 3,
	}
}

func (c Config) validate() error {
	if c.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	if c.CloseTimeout <= 0 {
		return errors.New("close timeout must be positive")
	}
	if c.FetchRetry.MaxAttempts < 1 || c.CloseRetry.MaxAttempts < 1 {
		return errors.New("retry attempts must be at least 1")
	}
	if c.ClaimLease < 0 {
		return errors.New("claim lease must not be negative")
	}
	if c.UnhealthyAfter < 1 {
		return errors.New("unhealthy threshold must be at least 1")
	}
	if c.WickDetection {
		if c.WickCandles < 1 {
			return errors.New("wick detection needs at least one candle")
		}
		if _, err := market.TimeframeDuration(c.Timeframe); err != nil {
			return fmt.Errorf("wick timeframe: %w", err)
		}
	}
	return nil
}

func (c Config) staleAfter() time.Duration {
	if c.StaleAfter > 0 {
		return c.StaleAfter
	}
	return 3 * c.TickInterval
}

// claimLease covers the longest gap between two renewals by a live owner:
// one close call plus the longer of a backoff wait and the next tick, twice.
func (c Config) claimLease() time.Duration {
	if c.ClaimLease > 0 {
		return c.ClaimLease
	}
	wait := time.Duration(float64(c.CloseRetry.MaxDelay) * (1 + c.CloseRetry.Jitter))
	if c.TickInterval > wait {
		wait = c.TickInterval
	}
	return 2 * (c.CloseTimeout + wait)
}
