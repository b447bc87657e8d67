package health

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFailureStreakMarksUnhealthy(t *testing.T) {
	tr := NewTracker(Config{UnhealthyAfter: 3})
	tr.Track("XAUUSD", t0)

	assert.False(t, tr.RecordFailure("XAUUSD", errors.New("timeout"), t0.Add(30*time.Second)))
	assert.False(t, tr.RecordFailure("XAUUSD", errors.New("timeout"), t0.Add(60*time.Second)))
	assert.True(t, tr.RecordFailure("XAUUSD", errors.New("timeout"), t0.Add(90*time.Second)))
	// only the transition reports
	assert.False(t, tr.RecordFailure("XAUUSD", errors.New("timeout"), t0.Add(120*time.Second)))

	h, ok := tr.Symbol("XAUUSD", t0.Add(120*time.Second))
	require.True(t, ok)
	assert.False(t, h.Healthy)
	assert.Equal(t, 4, h.ConsecutiveFailures)
	assert.Equal(t, "timeout", h.LastError)

	assert.True(t, tr.RecordSuccess("XAUUSD", t0.Add(150*time.Second)))
	h, _ = tr.Symbol("XAUUSD", t0.Add(150*time.Second))
	assert.True(t, h.Healthy)
	assert.Equal(t, 0, h.ConsecutiveFailures)
	assert.Equal(t, 4, h.TotalFailures)
	assert.Equal(t, 1, h.TotalSuccesses)

	assert.False(t, tr.RecordSuccess("XAUUSD", t0.Add(180*time.Second)))
}

func TestStaleness(t *testing.T) {
	tr := NewTracker(Config{UnhealthyAfter: 3, StaleAfter: 90 * time.Second})
	tr.Track("EURUSD", t0)

	h, _ := tr.Symbol("EURUSD", t0.Add(60*time.Second))
	assert.True(t, h.Healthy)

	h, _ = tr.Symbol("EURUSD", t0.Add(91*time.Second))
	assert.False(t, h.Healthy)
	assert.True(t, h.Stale)

	tr.RecordSuccess("EURUSD", t0.Add(100*time.Second))
	h, _ = tr.Symbol("EURUSD", t0.Add(120*time.Second))
	assert.True(t, h.Healthy)
}

func TestStatusAndPending(t *testing.T) {
	tr := NewTracker(Config{UnhealthyAfter: 1})
	tr.Track("XAUUSD", t0)
	tr.Track("EURUSD", t0)
	tr.RecordFailure("EURUSD", errors.New("down"), t0)
	tr.SetPendingClose("XAUUSD", true, t0)

	st := tr.Status(t0)
	assert.Equal(t, []string{"EURUSD", "XAUUSD"}, st.Symbols)
	assert.Equal(t, []string{"XAUUSD"}, st.PendingCloses)
	assert.Equal(t, []string{"EURUSD"}, st.Unhealthy())

	tr.Forget("EURUSD")
	_, ok := tr.Symbol("EURUSD", t0)
	assert.False(t, ok)
	assert.Empty(t, tr.Status(t0).Unhealthy())
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tr := NewTracker(Config{UnhealthyAfter: 3, StaleAfter: time.Minute})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if j%2 == 0 {
					tr.RecordFailure("XAUUSD", errors.New("x"), t0)
				} else {
					tr.RecordSuccess("XAUUSD", t0)
				}
				_ = tr.Status(t0)
			}
		}(i)
	}
	wg.Wait()

	h, ok := tr.Symbol("XAUUSD", t0)
	require.True(t, ok)
	assert.Equal(t, 2000, h.TotalFailures+h.TotalSuccesses)
}
