package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vanlt3/LifeTime-Swing/internal/market"
)

func TestHandleMessageFormats(t *testing.T) {
	c := New(Config{Symbols: map[string]string{"XAUUSD": "PAXGUSDT"}}, zaptest.NewLogger(t))

	c.handleMessage([]byte(`{"e":"24hrTicker","s":"BTCUSDT","c":"97000.10"}`))
	c.handleMessage([]byte(`{"stream":"paxgusdt@bookTicker","data":{"s":"PAXGUSDT","b":"2650.00","a":"2651.00"}}`))
	c.handleMessage([]byte(`{"result":null,"id":1}`))
	c.handleMessage([]byte(`not json`))

	ctx := context.Background()

	price, err := c.GetPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 97000.10, price, 1e-9)

	price, err = c.GetPrice(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.InDelta(t, 2650.5, price, 1e-9)

	_, err = c.GetPrice(ctx, "EURUSD")
	assert.ErrorIs(t, err, market.ErrSourceUnavailable)
}

func TestStaleQuoteIsUnavailable(t *testing.T) {
	c := New(Config{MaxAge: time.Minute}, zaptest.NewLogger(t))
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.handleMessage([]byte(`{"s":"BTCUSDT","c":"100"}`))

	now = now.Add(2 * time.Minute)
	_, err := c.GetPrice(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, market.ErrSourceUnavailable)
}

func TestRunReceivesTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"ETHUSDT","c":"3500.5"}`))
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := New(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		p, err := c.GetPrice(context.Background(), "ETHUSDT")
		return err == nil && p == 3500.5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
