// internal/position/position.go
package position

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrInvalidPosition is returned when a position fails validation.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrNotFound is returned when a symbol is not registered.
	ErrNotFound = errors.New("position not found")
)

// Direction is the side of a position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// ParseDirection accepts LONG/SHORT as well as the BUY/SELL signal names.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return Long, nil
	case "SHORT", "SELL":
		return Short, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidPosition, s)
	}
}

// State is the lifecycle state of a registered position.
type State string

const (
	Active  State = "ACTIVE"
	Closing State = "CLOSING"
	Closed  State = "CLOSED"
)

// Position is an open trade watched by the monitor.
type Position struct {
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	EntryPrice  float64   `json:"entry_price"`
	StopPrice   float64   `json:"stop_price"`
	TargetPrice float64   `json:"target_price"`
	OpenedAt    time.Time `json:"opened_at"`
	State       State     `json:"state"`

	// Generation is assigned by the registry when the symbol is inserted and
	// kept across updates. A removed and re-added symbol gets a new one.
	Generation uint64 `json:"generation"`

	// ClaimedBy and ClaimedAt identify the close claim of a CLOSING position.
	ClaimedBy string    `json:"claimed_by,omitempty"`
	ClaimedAt time.Time `json:"claimed_at,omitzero"`
}

// Claim identifies one close of one generation of a position by one owner.
type Claim struct {
	Symbol     string
	Generation uint64
	Owner      string
}

// NormalizeSymbol upper-cases and trims a symbol so registry keys are stable.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Validate checks that the position can be monitored.
func (p Position) Validate() error {
	if err := p.validateBasics(); err != nil {
		return err
	}
	if !validPrice(p.EntryPrice) {
		return fmt.Errorf("%w: %s entry price %v", ErrInvalidPosition, p.Symbol, p.EntryPrice)
	}

	switch p.Direction {
	case Long:
		if !(p.StopPrice < p.EntryPrice && p.EntryPrice < p.TargetPrice) {
			return fmt.Errorf("%w: %s LONG requires stop < entry < target (%v / %v / %v)",
				ErrInvalidPosition, p.Symbol, p.StopPrice, p.EntryPrice, p.TargetPrice)
		}
	case Short:
		if !(p.TargetPrice < p.EntryPrice && p.EntryPrice < p.StopPrice) {
			return fmt.Errorf("%w: %s SHORT requires target < entry < stop (%v / %v / %v)",
				ErrInvalidPosition, p.Symbol, p.TargetPrice, p.EntryPrice, p.StopPrice)
		}
	}
	return nil
}

// validateLevels is the relaxed check used when levels trail after entry.
func (p Position) validateLevels() error {
	if err := p.validateBasics(); err != nil {
		return err
	}
	if p.Direction == Long && p.StopPrice >= p.TargetPrice {
		return fmt.Errorf("%w: %s LONG stop %v must stay below target %v",
			ErrInvalidPosition, p.Symbol, p.StopPrice, p.TargetPrice)
	}
	if p.Direction == Short && p.StopPrice <= p.TargetPrice {
		return fmt.Errorf("%w: %s SHORT stop %v must stay above target %v",
			ErrInvalidPosition, p.Symbol, p.StopPrice, p.TargetPrice)
	}
	return nil
}

func (p Position) validateBasics() error {
	if NormalizeSymbol(p.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidPosition)
	}
	if p.Direction != Long && p.Direction != Short {
		return fmt.Errorf("%w: %s has unknown direction %q", ErrInvalidPosition, p.Symbol, p.Direction)
	}
	if !validPrice(p.StopPrice) {
		return fmt.Errorf("%w: %s stop price %v", ErrInvalidPosition, p.Symbol, p.StopPrice)
	}
	if !validPrice(p.TargetPrice) {
		return fmt.Errorf("%w: %s target price %v", ErrInvalidPosition, p.Symbol, p.TargetPrice)
	}
	return nil
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (p Position) String() string {
	return fmt.Sprintf("%s %s entry=%g stop=%g target=%g [%s]",
		p.Symbol, p.Direction, p.EntryPrice, p.StopPrice, p.TargetPrice, p.State)
}
