// internal/market/market.go
package market

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLC bar. Timestamp is the bar open time.
type Candle struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Timeframe string    `json:"timeframe"`
}

// Validate rejects bars a provider should never hand out.
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("candle at %s has non-positive price", c.Timestamp.Format(time.RFC3339))
		}
	}
	if c.High < c.Low || c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
		return fmt.Errorf("candle at %s has inconsistent range o=%g h=%g l=%g c=%g",
			c.Timestamp.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close)
	}
	return nil
}

// PriceSource returns the latest traded or quoted price for a symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// CandleSource returns the most recent bars, oldest first.
type CandleSource interface {
	GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)
}

// SymbolMap translates internal symbols into provider-specific ones.
type SymbolMap map[string]string

// NewSymbolMap builds a map with case-insensitive keys.
func NewSymbolMap(m map[string]string) SymbolMap {
	out := make(SymbolMap, len(m))
	for k, v := range m {
		out[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return out
}

// Resolve returns the provider symbol, or the input when no mapping exists.
func (m SymbolMap) Resolve(symbol string) string {
	if mapped, ok := m[strings.ToUpper(strings.TrimSpace(symbol))]; ok && mapped != "" {
		return mapped
	}
	return symbol
}

// ParsePrice parses a decimal string as returned by exchange APIs.
func ParsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("non-positive price %q", s)
	}
	f, _ := d.Float64()
	return f, nil
}

// TimeframeDuration converts labels like "5m", "1h" or "1d" into durations.
func TimeframeDuration(tf string) (time.Duration, error) {
	tf = strings.ToLower(strings.TrimSpace(tf))
	if len(tf) < 2 {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}

	var n int
	if _, err := fmt.Sscanf(tf[:len(tf)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}

	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
}

// CandlesSince drops bars that closed at or before t.
func CandlesSince(candles []Candle, t time.Time, period time.Duration) []Candle {
	if t.IsZero() {
		return candles
	}
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Timestamp.Add(period).After(t) {
			out = append(out, c)
		}
	}
	return out
}

// LastN returns the newest n bars keeping oldest-first order.
func LastN(candles []Candle, n int) []Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
