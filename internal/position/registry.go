// internal/position/registry.go
package position

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the concurrency-safe set of positions under watch, keyed by symbol.
// Every method is atomic on its own and no lock is ever held while calling out.
type Registry struct {
	mu        sync.RWMutex
	positions map[string]Position
	nextGen   uint64
	now       func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		positions: make(map[string]Position),
		now:       time.Now,
	}
}

// Add validates and upserts a position. Updating a symbol keeps its
// generation; re-adding one that is being closed keeps it CLOSING with its
// claim so an in-flight close is not raced by a fresh ACTIVE entry.
func (r *Registry) Add(p Position) error {
	p.Symbol = NormalizeSymbol(p.Symbol)
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p.State = Active
	p.ClaimedBy, p.ClaimedAt = "", time.Time{}
	if existing, ok := r.positions[p.Symbol]; ok {
		p.Generation = existing.Generation
		if existing.State == Closing {
			p.State = Closing
			p.ClaimedBy, p.ClaimedAt = existing.ClaimedBy, existing.ClaimedAt
		}
		if p.OpenedAt.IsZero() {
			p.OpenedAt = existing.OpenedAt
		}
	} else {
		r.nextGen++
		p.Generation = r.nextGen
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = r.now()
	}

	r.positions[p.Symbol] = p
	return nil
}

// Remove deletes a symbol and reports whether it was present.
func (r *Registry) Remove(symbol string) bool {
	symbol = NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.positions[symbol]; !ok {
		return false
	}
	delete(r.positions, symbol)
	return true
}

// RemoveIf deletes a symbol only while it still holds generation.
func (r *Registry) RemoveIf(symbol string, generation uint64) bool {
	symbol = NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[symbol]
	if !ok || p.Generation != generation {
		return false
	}
	delete(r.positions, symbol)
	return true
}

// Get returns a copy of the stored position.
func (r *Registry) Get(symbol string) (Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.positions[NormalizeSymbol(symbol)]
	return p, ok
}

// Contains reports whether the symbol is registered.
func (r *Registry) Contains(symbol string) bool {
	_, ok := r.Get(symbol)
	return ok
}

// Snapshot returns a copy of all positions.
func (r *Registry) Snapshot() map[string]Position {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Position, len(r.positions))
	for symbol, p := range r.positions {
		out[symbol] = p
	}
	return out
}

// Symbols returns the registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	symbols := make([]string, 0, len(r.positions))
	for symbol := range r.positions {
		symbols = append(symbols, symbol)
	}
	r.mu.RUnlock()

	sort.Strings(symbols)
	return symbols
}

// List returns all positions sorted by symbol.
func (r *Registry) List() []Position {
	snapshot := r.Snapshot()
	out := make([]Position, 0, len(snapshot))
	for _, p := range snapshot {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of registered positions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// UpdateLevels atomically replaces the stop and target of a position.
// A cycle holding an older snapshot keeps using the old levels.
func (r *Registry) UpdateLevels(symbol string, stop, target float64) (Position, error) {
	symbol = NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[symbol]
	if !ok {
		return Position{}, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	p.StopPrice = stop
	p.TargetPrice = target
	if err := p.validateLevels(); err != nil {
		return Position{}, err
	}

	r.positions[symbol] = p
	return p, nil
}

// BeginClose moves an ACTIVE position of the claimed generation to CLOSING
// and records the owner. It returns false when the symbol is gone, was
// replaced or is already closing, which is the confirm-before-act check.
func (r *Registry) BeginClose(c Claim, at time.Time) (Position, bool) {
	symbol := NormalizeSymbol(c.Symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[symbol]
	if !ok || p.Generation != c.Generation || p.State != Active {
		return Position{}, false
	}
	p.State = Closing
	p.ClaimedBy = c.Owner
	p.ClaimedAt = at
	r.positions[symbol] = p
	return p, true
}

// RenewClose confirms c still owns the close and refreshes its claim time.
func (r *Registry) RenewClose(c Claim, at time.Time) bool {
	symbol := NormalizeSymbol(c.Symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[symbol]
	if !ok || !p.claimedBy(c) {
		return false
	}
	p.ClaimedAt = at
	r.positions[symbol] = p
	return true
}

// AbortClose returns a CLOSING position to ACTIVE. Only the owner of the
// claim can abort it.
func (r *Registry) AbortClose(c Claim) bool {
	symbol := NormalizeSymbol(c.Symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[symbol]
	if !ok || !p.claimedBy(c) {
		return false
	}
	p.release()
	r.positions[symbol] = p
	return true
}

// ReclaimStale returns a CLOSING position to ACTIVE when its claim has not
// been renewed for lease, i.e. its owner is gone.
func (r *Registry) ReclaimStale(symbol string, lease time.Duration, now time.Time) (Position, bool) {
	symbol = NormalizeSymbol(symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.positions[symbol]
	if !ok || p.State != Closing || now.Sub(p.ClaimedAt) < lease {
		return Position{}, false
	}
	p.release()
	r.positions[symbol] = p
	return p, true
}

func (p Position) claimedBy(c Claim) bool {
	return p.State == Closing && p.Generation == c.Generation && p.ClaimedBy == c.Owner
}

func (p *Position) release() {
	p.State = Active
	p.ClaimedBy = ""
	p.ClaimedAt = time.Time{}
}
