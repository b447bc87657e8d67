// internal/detector/detector.go
package detector

import (
	"fmt"
	"math"
	"time"

	"github.com/vanlt3/LifeTime-Swing/internal/market"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
)

// Kind tells which threshold was crossed.
type Kind string

const (
	KindNone   Kind = ""
	KindStop   Kind = "STOP"
	KindTarget Kind = "TARGET"
)

// Method tells how the crossing was observed.
type Method string

const (
	MethodLivePrice Method = "LIVE_PRICE"
	MethodWick      Method = "WICK"
)

// Evidence is the observation that crossed the threshold.
type Evidence struct {
	Price float64       `json:"price"`
	At    time.Time     `json:"at"`
	Bar   *market.Candle `json:"candle,omitempty"`
}

// Result is the outcome of a detection. The zero value means no hit.
type Result struct {
	Symbol     string    `json:"symbol"`
	Kind       Kind      `json:"kind"`
	Method     Method    `json:"method"`
	Threshold  float64   `json:"threshold"`
	Evidence   Evidence  `json:"evidence"`
	DetectedAt time.Time `json:"detected_at"`
}

// Hit reports whether a threshold was crossed.
func (r Result) Hit() bool {
	return r.Kind != KindNone
}

func (r Result) String() string {
	if !r.Hit() {
		return fmt.Sprintf("%s: no hit", r.Symbol)
	}
	return fmt.Sprintf("%s: %s hit via %s (threshold %g, observed %g at %s)",
		r.Symbol, r.Kind, r.Method, r.Threshold, r.Evidence.Price, r.Evidence.At.Format(time.RFC3339))
}

// DetectPriceHit checks a live price against the position levels.
// Boundaries are inclusive and the stop is checked first.
func DetectPriceHit(pos position.Position, price float64, now time.Time) Result {
	none := Result{Symbol: pos.Symbol}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return none
	}

	var kind Kind
	switch pos.Direction {
	case position.Long:
		if price <= pos.StopPrice {
			kind = KindStop
		} else if price >= pos.TargetPrice {
			kind = KindTarget
		}
	case position.Short:
		if price >= pos.StopPrice {
			kind = KindStop
		} else if price <= pos.TargetPrice {
			kind = KindTarget
		}
	}
	if kind == KindNone {
		return none
	}

	return Result{
		Symbol:     pos.Symbol,
		Kind:       kind,
		Method:     MethodLivePrice,
		Threshold:  threshold(pos, kind),
		Evidence:   Evidence{Price: price, At: now},
		DetectedAt: now,
	}
}

// DetectWickHit scans candles oldest to newest and reports the first bar whose
// extreme crossed a level. When one bar crosses both levels, the level closer
// to the bar open is taken to have been reached first; a tie resolves to STOP.
func DetectWickHit(pos position.Position, candles []market.Candle, now time.Time) Result {
	for i := range candles {
		c := candles[i]
		stopHit, targetHit := crossings(pos, c)

		var kind Kind
		switch {
		case stopHit && targetHit:
			kind = nearerToOpen(pos, c)
		case stopHit:
			kind = KindStop
		case targetHit:
			kind = KindTarget
		default:
			continue
		}

		return Result{
			Symbol:    pos.Symbol,
			Kind:      kind,
			Method:    MethodWick,
			Threshold: threshold(pos, kind),
			Evidence: Evidence{
				Price: extreme(pos, c, kind),
				At:    c.Timestamp,
				Bar:   &c,
			},
			DetectedAt: now,
		}
	}
	return Result{Symbol: pos.Symbol}
}

func crossings(pos position.Position, c market.Candle) (stopHit, targetHit bool) {
	switch pos.Direction {
	case position.Long:
		return c.Low <= pos.StopPrice, c.High >= pos.TargetPrice
	case position.Short:
		return c.High >= pos.StopPrice, c.Low <= pos.TargetPrice
	}
	return false, false
}

func nearerToOpen(pos position.Position, c market.Candle) Kind {
	if math.Abs(c.Open-pos.TargetPrice) < math.Abs(c.Open-pos.StopPrice) {
		return KindTarget
	}
	return KindStop
}

// extreme is the bar price that did the crossing.
func extreme(pos position.Position, c market.Candle, kind Kind) float64 {
	lowSide := (pos.Direction == position.Long) == (kind == KindStop)
	if lowSide {
		return c.Low
	}
	return c.High
}

func threshold(pos position.Position, kind Kind) float64 {
	if kind == KindStop {
		return pos.StopPrice
	}
	return pos.TargetPrice
}
