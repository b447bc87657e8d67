package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/events"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
	"github.com/vanlt3/LifeTime-Swing/internal/storage/models"
)

type countingSink struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (s *countingSink) Name() string { return "counting" }

func (s *countingSink) Send(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func stopHit(symbol string, at time.Time) events.HitEvent {
	return events.HitEvent{
		BaseEvent: events.NewBaseEvent(events.HitDetected, at),
		Position:  position.Position{Symbol: symbol, Direction: position.Long},
		Result: detector.Result{
			Symbol:     symbol,
			Kind:       detector.KindStop,
			Method:     detector.MethodWick,
			Threshold:  2300,
			Evidence:   detector.Evidence{Price: 2299.5, At: at},
			DetectedAt: at,
		},
	}
}

func TestFromEvent(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	a, ok := FromEvent(stopHit("XAUUSD", at))
	require.True(t, ok)
	assert.Equal(t, AlertTypeHit, a.Type)
	assert.Equal(t, "XAUUSD", a.Symbol)
	assert.Contains(t, a.Message, "STOP LOSS")
	assert.Contains(t, a.Details, "candle wick")
	assert.Equal(t, 2299.5, a.Price)

	a, ok = FromEvent(events.CloseEvent{
		BaseEvent: events.NewBaseEvent(events.CloseExhausted, at),
		Symbol:    "XAUUSD",
		Attempt:   5,
		Error:     "broker down",
	})
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Contains(t, a.Text(), "🚨")

	a, ok = FromEvent(events.HealthEvent{
		BaseEvent:           events.NewBaseEvent(events.HealthDegraded, at),
		Symbol:              "EURUSD",
		ConsecutiveFailures: 3,
	})
	require.True(t, ok)
	assert.Equal(t, AlertTypeDegraded, a.Type)
	assert.Contains(t, a.Message, "3 cycles")
}

func closeFailed(symbol string, attempt int, at time.Time) events.CloseEvent {
	return events.CloseEvent{
		BaseEvent: events.NewBaseEvent(events.CloseFailed, at),
		Symbol:    symbol,
		Attempt:   attempt,
		Error:     "broker unavailable",
	}
}

func TestManagerCooldown(t *testing.T) {
	sink := &countingSink{}
	m := NewManager(Config{Cooldown: time.Minute}, zaptest.NewLogger(t), sink)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Handle(ctx, closeFailed("XAUUSD", 1, now)))
	require.NoError(t, m.Handle(ctx, closeFailed("XAUUSD", 2, now)))
	require.NoError(t, m.Handle(ctx, closeFailed("EURUSD", 1, now)))
	assert.Equal(t, 2, sink.count())

	now = now.Add(61 * time.Second)
	require.NoError(t, m.Handle(ctx, closeFailed("XAUUSD", 3, now)))
	assert.Equal(t, 3, sink.count())

	assert.Len(t, m.GetRecentAlerts(0), 3)
	assert.Len(t, m.GetRecentAlerts(1), 1)
	assert.Len(t, m.GetAlertsBySymbol("XAUUSD"), 2)

	m.ClearHistory()
	require.NoError(t, m.Handle(ctx, closeFailed("XAUUSD", 4, now)))
	assert.Equal(t, 4, sink.count())
}

func TestManagerCooldownSkipsOneShotAlerts(t *testing.T) {
	sink := &countingSink{}
	m := NewManager(Config{Cooldown: time.Hour}, zaptest.NewLogger(t), sink)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	degraded := func() events.HealthEvent {
		return events.HealthEvent{
			BaseEvent:           events.NewBaseEvent(events.HealthDegraded, now),
			Symbol:              "XAUUSD",
			ConsecutiveFailures: 3,
		}
	}

	// a re-added position hitting again inside the cooldown still alerts
	require.NoError(t, m.Handle(ctx, stopHit("XAUUSD", now)))
	require.NoError(t, m.Handle(ctx, stopHit("XAUUSD", now)))
	require.NoError(t, m.Handle(ctx, degraded()))
	require.NoError(t, m.Handle(ctx, events.HealthEvent{
		BaseEvent: events.NewBaseEvent(events.HealthRecovered, now),
		Symbol:    "XAUUSD",
	}))
	require.NoError(t, m.Handle(ctx, degraded()))

	assert.Equal(t, 5, sink.count())
}

func TestManagerReportsSinkErrors(t *testing.T) {
	good := &countingSink{}
	bad := &countingSink{err: errors.New("rate limited")}
	m := NewManager(DefaultConfig(), zap.NewNop(), bad, good)

	err := m.Handle(context.Background(), stopHit("XAUUSD", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, 1, good.count())
}

func TestManagerHistoryIsBounded(t *testing.T) {
	m := NewManager(Config{MaxAlerts: 5}, zap.NewNop())
	for i := 0; i < 20; i++ {
		_ = m.Trigger(context.Background(), Alert{ID: "x", Type: AlertTypeHit, Symbol: string(rune('A' + i))})
	}
	recent := m.GetRecentAlerts(0)
	require.Len(t, recent, 5)
	assert.Equal(t, string(rune('A'+19)), recent[4].Symbol)
}

func TestManagerConcurrentAccess(t *testing.T) {
	sink := &countingSink{}
	m := NewManager(Config{Cooldown: 0}, zap.NewNop(), sink)

	var wg sync.WaitGroup
	var reads atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.Handle(context.Background(), stopHit("XAUUSD", time.Now()))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.GetRecentAlerts(10)
				reads.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, sink.count())
	assert.Equal(t, int32(500), reads.Load())
}

func TestDiscordSink(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, _ := FromEvent(stopHit("XAUUSD", time.Now()))
	require.NoError(t, NewDiscordSink(srv.URL, time.Second).Send(context.Background(), a))
	require.Len(t, got.Embeds, 1)
	assert.Contains(t, got.Embeds[0].Title, "XAUUSD")
	assert.Equal(t, 0xf1c40f, got.Embeds[0].Color)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer failing.Close()
	assert.Error(t, NewDiscordSink(failing.URL, time.Second).Send(context.Background(), a))
}

type MockTelegram struct {
	mock.Mock
}

func (m *MockTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

func TestTelegramSink(t *testing.T) {
	bot := new(MockTelegram)
	bot.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42 && len(msg.Text) > 0
	})).Return(nil).Once()

	sink := &TelegramSink{bot: bot, chatID: 42}
	a, _ := FromEvent(stopHit("XAUUSD", time.Now()))
	require.NoError(t, sink.Send(context.Background(), a))
	bot.AssertExpectations(t)
}

type memoryJournal struct {
	records []*models.AlertRecord
}

func (j *memoryJournal) SaveAlert(_ context.Context, rec *models.AlertRecord) error {
	j.records = append(j.records, rec)
	return nil
}

func TestJournalSink(t *testing.T) {
	j := &memoryJournal{}
	a, _ := FromEvent(stopHit("XAUUSD", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, NewJournalSink(j).Send(context.Background(), a))
	require.Len(t, j.records, 1)
	assert.Equal(t, "hit_detected", j.records[0].Type)
	assert.Equal(t, a.ID, j.records[0].AlertID)
	assert.Equal(t, a.Timestamp, j.records[0].CreatedAt)
}
