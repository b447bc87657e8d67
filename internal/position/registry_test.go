package position

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func goldLong() Position {
	return Position{
		Symbol:      "XAUUSD",
		Direction:   Long,
		EntryPrice:  2650,
		StopPrice:   2300,
		TargetPrice: 2700,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Position)
		wantErr bool
	}{
		{"valid long", func(p *Position) {}, false},
		{"valid short", func(p *Position) {
			*p = Position{Symbol: "EURUSD", Direction: Short, EntryPrice: 1.0850, StopPrice: 1.0900, TargetPrice: 1.0800}
		}, false},
		{"empty symbol", func(p *Position) { p.Symbol = "  " }, true},
		{"unknown direction", func(p *Position) { p.Direction = "FLAT" }, true},
		{"zero stop", func(p *Position) { p.StopPrice = 0 }, true},
		{"nan target", func(p *Position) { p.TargetPrice = math.NaN() }, true},
		{"inf entry", func(p *Position) { p.EntryPrice = math.Inf(1) }, true},
		{"long stop above entry", func(p *Position) { p.StopPrice = 2660 }, true},
		{"short levels swapped", func(p *Position) {
			*p = Position{Symbol: "EURUSD", Direction: Short, EntryPrice: 1.0850, StopPrice: 1.0800, TargetPrice: 1.0900}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := goldLong()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPosition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("buy")
	require.NoError(t, err)
	assert.Equal(t, Long, d)

	d, err = ParseDirection(" Short ")
	require.NoError(t, err)
	assert.Equal(t, Short, d)

	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestRegistryAddAndGet(t *testing.T) {
	r := NewRegistry()

	p := goldLong()
	p.Symbol = " xauusd "
	require.NoError(t, r.Add(p))

	got, ok := r.Get("XAUUSD")
	require.True(t, ok)
	assert.Equal(t, "XAUUSD", got.Symbol)
	assert.Equal(t, Active, got.State)
	assert.False(t, got.OpenedAt.IsZero())
	assert.True(t, r.Contains("xauusd"))
	assert.Equal(t, 1, r.Len())

	bad := goldLong()
	bad.StopPrice = -1
	assert.ErrorIs(t, r.Add(bad), ErrInvalidPosition)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryReAddKeepsClosingAndOpenTime(t *testing.T) {
	r := NewRegistry()
	opened := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)

	p := goldLong()
	p.OpenedAt = opened
	require.NoError(t, r.Add(p))
	first, _ := r.Get("XAUUSD")

	c := claimOf(first, "a")
	_, ok := r.BeginClose(c, opened)
	require.True(t, ok)

	again := goldLong()
	again.TargetPrice = 2750
	require.NoError(t, r.Add(again))

	got, _ := r.Get("XAUUSD")
	assert.Equal(t, Closing, got.State)
	assert.Equal(t, opened, got.OpenedAt)
	assert.Equal(t, 2750.0, got.TargetPrice)
	assert.Equal(t, first.Generation, got.Generation)
	assert.Equal(t, "a", got.ClaimedBy)
	assert.True(t, r.RenewClose(c, opened.Add(time.Second)))
}

func claimOf(p Position, owner string) Claim {
	return Claim{Symbol: p.Symbol, Generation: p.Generation, Owner: owner}
}

func TestRegistryBeginCloseIsExclusive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(goldLong()))
	p, _ := r.Get("XAUUSD")
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winner string

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			if _, ok := r.BeginClose(claimOf(p, owner), now); ok {
				mu.Lock()
				assert.Empty(t, winner)
				winner = owner
				mu.Unlock()
			}
		}(fmt.Sprintf("monitor-%d", i))
	}
	wg.Wait()

	require.NotEmpty(t, winner)
	got, _ := r.Get("XAUUSD")
	assert.Equal(t, winner, got.ClaimedBy)

	// a monitor that lost the race cannot release the winner's claim
	loser := "monitor-x"
	assert.False(t, r.AbortClose(claimOf(p, loser)))
	assert.False(t, r.RenewClose(claimOf(p, loser), now))
	got, _ = r.Get("XAUUSD")
	assert.Equal(t, Closing, got.State)

	assert.True(t, r.AbortClose(claimOf(p, winner)))
	assert.False(t, r.AbortClose(claimOf(p, winner)))
	got, _ = r.Get("XAUUSD")
	assert.Equal(t, Active, got.State)
	assert.Empty(t, got.ClaimedBy)
}

func TestRegistryBeginCloseMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.BeginClose(Claim{Symbol: "GBPUSD", Generation: 1, Owner: "a"}, time.Now())
	assert.False(t, ok)
}

func TestRegistryGenerations(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(goldLong()))
	first, _ := r.Get("XAUUSD")
	assert.NotZero(t, first.Generation)

	// an upsert is the same position
	_, err := r.UpdateLevels("XAUUSD", 2310, 2710)
	require.NoError(t, err)
	require.NoError(t, r.Add(goldLong()))
	same, _ := r.Get("XAUUSD")
	assert.Equal(t, first.Generation, same.Generation)

	// remove then add is a new one
	require.True(t, r.Remove("XAUUSD"))
	require.NoError(t, r.Add(goldLong()))
	second, _ := r.Get("XAUUSD")
	assert.NotEqual(t, first.Generation, second.Generation)

	_, ok := r.BeginClose(claimOf(first, "a"), time.Now())
	assert.False(t, ok, "a claim for the removed generation must not close its replacement")

	assert.False(t, r.RemoveIf("XAUUSD", first.Generation))
	assert.True(t, r.Contains("XAUUSD"))
	assert.True(t, r.RemoveIf("xauusd", second.Generation))
	assert.False(t, r.Contains("XAUUSD"))
	assert.False(t, r.RemoveIf("XAUUSD", second.Generation))
}

func TestRegistryReclaimStale(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(goldLong()))
	p, _ := r.Get("XAUUSD")
	t0 := time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)
	lease := 30 * time.Second

	_, ok := r.ReclaimStale("XAUUSD", lease, t0)
	assert.False(t, ok, "an active position has no claim to reclaim")

	a := claimOf(p, "a")
	_, ok = r.BeginClose(a, t0)
	require.True(t, ok)

	_, ok = r.ReclaimStale("XAUUSD", lease, t0.Add(20*time.Second))
	assert.False(t, ok)

	// renewal pushes the lease out
	require.True(t, r.RenewClose(a, t0.Add(20*time.Second)))
	_, ok = r.ReclaimStale("XAUUSD", lease, t0.Add(40*time.Second))
	assert.False(t, ok)

	got, ok := r.ReclaimStale("XAUUSD", lease, t0.Add(50*time.Second))
	require.True(t, ok)
	assert.Equal(t, Active, got.State)
	assert.Empty(t, got.ClaimedBy)

	// the old owner finds its claim gone
	assert.False(t, r.RenewClose(a, t0.Add(51*time.Second)))
	_, ok = r.BeginClose(claimOf(p, "b"), t0.Add(51*time.Second))
	assert.True(t, ok)
	assert.False(t, r.AbortClose(a))
}

func TestRegistryUpdateLevels(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(goldLong()))

	snapshot := r.Snapshot()

	// trailing stop moved above entry is allowed
	updated, err := r.UpdateLevels("XAUUSD", 2660, 2720)
	require.NoError(t, err)
	assert.Equal(t, 2660.0, updated.StopPrice)

	assert.Equal(t, 2300.0, snapshot["XAUUSD"].StopPrice, "earlier snapshot must not change")

	_, err = r.UpdateLevels("XAUUSD", 2800, 2720)
	assert.ErrorIs(t, err, ErrInvalidPosition)

	_, err = r.UpdateLevels("USDJPY", 1, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	got, _ := r.Get("XAUUSD")
	assert.Equal(t, 2660.0, got.StopPrice)
}

func TestRegistryRemoveAndList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(goldLong()))
	require.NoError(t, r.Add(Position{Symbol: "EURUSD", Direction: Short, EntryPrice: 1.085, StopPrice: 1.09, TargetPrice: 1.08}))

	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, r.Symbols())
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "EURUSD", list[0].Symbol)

	assert.True(t, r.Remove("eurusd"))
	assert.False(t, r.Remove("EURUSD"))
	assert.Equal(t, []string{"XAUUSD"}, r.Symbols())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p := goldLong()
			p.Symbol = fmt.Sprintf("SYM%d", id%5)
			for j := 0; j < 100; j++ {
				_ = r.Add(p)
				_ = r.Snapshot()
				_, _ = r.UpdateLevels(p.Symbol, 2290, 2710)
				if j%10 == 0 {
					r.Remove(p.Symbol)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 5)
}
