package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
)

func hitEvent(symbol string) HitEvent {
	return HitEvent{
		BaseEvent: NewBaseEvent(HitDetected, time.Now()),
		Result:    detector.Result{Symbol: symbol, Kind: detector.KindStop, Method: detector.MethodLivePrice},
	}
}

func TestPublishDeliversToTypedAndWildcardHandlers(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16, time.Second)

	var typed, all atomic.Int32
	bus.SubscribeFunc(HitDetected, func(ctx context.Context, e Event) error {
		typed.Add(1)
		return nil
	})
	bus.SubscribeFunc(All, func(ctx context.Context, e Event) error {
		all.Add(1)
		return nil
	})

	require.NoError(t, bus.Publish(hitEvent("XAUUSD")))
	require.NoError(t, bus.Publish(HealthEvent{BaseEvent: NewBaseEvent(HealthDegraded, time.Now()), Symbol: "XAUUSD"}))

	require.NoError(t, bus.Shutdown(context.Background()))

	assert.Equal(t, int32(1), typed.Load())
	assert.Equal(t, int32(2), all.Load())
	assert.Equal(t, uint64(2), bus.Stats().Published)
}

func TestPublishNeverBlocksWhenFull(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 1, time.Second)

	release := make(chan struct{})
	bus.SubscribeFunc(All, func(ctx context.Context, e Event) error {
		<-release
		return nil
	})

	done := make(chan struct{})
	var dropped int
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			if errors.Is(bus.Publish(hitEvent("XAUUSD")), ErrBusFull) {
				dropped++
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
	close(release)

	assert.Equal(t, uint64(dropped), bus.Stats().Dropped)
	require.NoError(t, bus.Shutdown(context.Background()))
	assert.ErrorIs(t, bus.Publish(hitEvent("XAUUSD")), ErrBusClosed)
}

func TestPublishSyncCollectsErrorsAndPanics(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4, time.Second)
	defer bus.Shutdown(context.Background())

	boom := errors.New("sink down")
	bus.SubscribeFunc(HitDetected, func(ctx context.Context, e Event) error { return boom })
	bus.SubscribeFunc(HitDetected, func(ctx context.Context, e Event) error { panic("bad handler") })

	err := bus.PublishSync(context.Background(), hitEvent("EURUSD"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panicked")
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 4, time.Second)
	defer bus.Shutdown(context.Background())

	var mu sync.Mutex
	calls := 0
	sub := bus.SubscribeFunc(HitDetected, func(ctx context.Context, e Event) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	assert.Equal(t, 1, bus.Stats().Subscriptions)

	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), hitEvent("XAUUSD")))

	mu.Lock()
	assert.Equal(t, 0, calls)
	mu.Unlock()
	assert.Equal(t, 0, bus.Stats().Subscriptions)
}

func TestSymbolOf(t *testing.T) {
	assert.Equal(t, "XAUUSD", SymbolOf(hitEvent("XAUUSD")))
	assert.Equal(t, "EURUSD", SymbolOf(CloseEvent{Symbol: "EURUSD"}))
	assert.Equal(t, "", SymbolOf(MonitoringEvent{}))
}
