package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vanlt3/LifeTime-Swing/internal/market"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v3/ticker/price":
			if r.URL.Query().Get("symbol") != "PAXGUSDT" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
				return
			}
			_, _ = w.Write([]byte(`[{"symbol":"PAXGUSDT","price":"2650.35000000"}]`))
		case "/api/v3/klines":
			_, _ = w.Write([]byte(`[
				[1735689600000,"2650.0","2660.0","2299.5","2301.0","12.5",1735693199999,"0",10,"0","0","0"],
				[1735693200000,"2301.0","2320.0","2295.0","2310.0","8.0",1735696799999,"0",7,"0","0","0"]
			]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestGetPrice(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Symbols: map[string]string{"XAUUSD": "PAXGUSDT"}}, zaptest.NewLogger(t))

	price, err := c.GetPrice(context.Background(), "XAUUSD")
	require.NoError(t, err)
	assert.InDelta(t, 2650.35, price, 1e-9)

	_, err = c.GetPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, market.ErrSourceUnavailable)
}

func TestGetRecentCandles(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Symbols: map[string]string{"XAUUSD": "PAXGUSDT"}}, zaptest.NewLogger(t))

	candles, err := c.GetRecentCandles(context.Background(), "XAUUSD", "1h", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.InDelta(t, 2299.5, candles[0].Low, 1e-9)
	assert.Equal(t, time.UnixMilli(1735689600000).UTC(), candles[0].Timestamp)
	assert.Equal(t, "1h", candles[1].Timeframe)
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
}
