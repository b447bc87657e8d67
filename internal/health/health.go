// internal/health/health.go
package health

import (
	"sort"
	"sync"
	"time"
)

// Config controls when a symbol is reported unhealthy.
type Config struct {
	// UnhealthyAfter is the consecutive failure count that marks a symbol unhealthy.
	UnhealthyAfter int
	// StaleAfter marks a symbol unhealthy when no cycle succeeded for this long.
	// Zero disables the check.
	StaleAfter time.Duration
}

// SymbolHealth is the per-symbol view exposed in Status.
type SymbolHealth struct {
	Symbol              string    `json:"symbol"`
	Healthy             bool      `json:"healthy"`
	Stale               bool      `json:"stale"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       int       `json:"total_failures"`
	TotalSuccesses      int       `json:"total_successes"`
	LastSuccess         time.Time `json:"last_success"`
	LastFailure         time.Time `json:"last_failure"`
	LastError           string    `json:"last_error,omitempty"`
	TrackedSince        time.Time `json:"tracked_since"`
	PendingClose        bool      `json:"pending_close"`
}

// Status is a point-in-time monitoring snapshot.
type Status struct {
	Active         bool                    `json:"monitoring_active"`
	PositionsCount int                     `json:"positions_count"`
	Symbols        []string                `json:"monitored_symbols"`
	Health         map[string]SymbolHealth `json:"health"`
	PendingCloses  []string                `json:"pending_closes"`
	GeneratedAt    time.Time               `json:"generated_at"`
}

// Unhealthy lists symbols that are failing or stale, sorted.
func (s Status) Unhealthy() []string {
	var out []string
	for symbol, h := range s.Health {
		if !h.Healthy {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

type symbolState struct {
	consecutive    int
	totalFailures  int
	totalSuccesses int
	lastSuccess    time.Time
	lastFailure    time.Time
	lastError      string
	trackedSince   time.Time
	pendingClose   bool
}

// Tracker records fetch outcomes per symbol. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	cfg     Config
	symbols map[string]*symbolState
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.UnhealthyAfter <= 0 {
		cfg.UnhealthyAfter = 3
	}
	return &Tracker{
		cfg:     cfg,
		symbols: make(map[string]*symbolState),
	}
}

// Track starts tracking a symbol; a no-op when already tracked.
func (t *Tracker) Track(symbol string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state(symbol, at)
}

func (t *Tracker) state(symbol string, at time.Time) *symbolState {
	s, ok := t.symbols[symbol]
	if !ok {
		s = &symbolState{trackedSince: at}
		t.symbols[symbol] = s
	}
	return s
}

// RecordSuccess resets the failure streak. It returns true when the symbol
// was unhealthy because of failures and has now recovered.
func (t *Tracker) RecordSuccess(symbol string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(symbol, at)
	recovered := s.consecutive >= t.cfg.UnhealthyAfter
	s.consecutive = 0
	s.totalSuccesses++
	s.lastSuccess = at
	return recovered
}

// RecordFailure extends the failure streak. It returns true on the failure
// that makes the symbol unhealthy.
func (t *Tracker) RecordFailure(symbol string, err error, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.state(symbol, at)
	s.consecutive++
	s.totalFailures++
	s.lastFailure = at
	if err != nil {
		s.lastError = err.Error()
	}
	return s.consecutive == t.cfg.UnhealthyAfter
}

// SetPendingClose flags a symbol whose close retries were exhausted.
func (t *Tracker) SetPendingClose(symbol string, pending bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state(symbol, at).pendingClose = pending
}

// Forget drops all state of a symbol.
func (t *Tracker) Forget(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.symbols, symbol)
}

// Symbol returns the health of one symbol.
func (t *Tracker) Symbol(symbol string, now time.Time) (SymbolHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.symbols[symbol]
	if !ok {
		return SymbolHealth{}, false
	}
	return t.view(symbol, s, now), true
}

// Status builds a snapshot of every tracked symbol. Active and PositionsCount
// are left for the caller to fill in.
func (t *Tracker) Status(now time.Time) Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := Status{
		Symbols:       make([]string, 0, len(t.symbols)),
		Health:        make(map[string]SymbolHealth, len(t.symbols)),
		PendingCloses: []string{},
		GeneratedAt:   now,
	}
	for symbol, s := range t.symbols {
		st.Symbols = append(st.Symbols, symbol)
		st.Health[symbol] = t.view(symbol, s, now)
		if s.pendingClose {
			st.PendingCloses = append(st.PendingCloses, symbol)
		}
	}
	sort.Strings(st.Symbols)
	sort.Strings(st.PendingCloses)
	return st
}

func (t *Tracker) view(symbol string, s *symbolState, now time.Time) SymbolHealth {
	ref := s.lastSuccess
	if ref.IsZero() {
		ref = s.trackedSince
	}
	stale := t.cfg.StaleAfter > 0 && now.Sub(ref) > t.cfg.StaleAfter

	return SymbolHealth{
		Symbol:              symbol,
		Healthy:             s.consecutive < t.cfg.UnhealthyAfter && !stale,
		Stale:               stale,
		ConsecutiveFailures: s.consecutive,
		TotalFailures:       s.totalFailures,
		TotalSuccesses:      s.totalSuccesses,
		LastSuccess:         s.lastSuccess,
		LastFailure:         s.lastFailure,
		LastError:           s.lastError,
		TrackedSince:        s.trackedSince,
		PendingClose:        s.pendingClose,
	}
}
