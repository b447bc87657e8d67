package finnhub

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

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		switch r.URL.Query().Get("symbol") {
		case "OANDA:XAU_USD":
			_, _ = w.Write([]byte(`{"c":2650.25,"h":2661,"l":2640,"o":2645,"pc":2644,"t":1735689600}`))
		default:
			_, _ = w.Write([]byte(`{"c":0,"h":0,"l":0,"o":0,"pc":0,"t":0}`))
		}
	}))
	defer srv.Close()

	c := New(Config{
		APIKey:  "secret",
		BaseURL: srv.URL,
		Symbols: map[string]string{"XAUUSD": "OANDA:XAU_USD"},
	}, zaptest.NewLogger(t))

	price, err := c.GetPrice(context.Background(), "XAUUSD")
	require.NoError(t, err)
	assert.InDelta(t, 2650.25, price, 1e-9)

	_, err = c.GetPrice(context.Background(), "UNKNOWN")
	assert.ErrorIs(t, err, market.ErrSourceUnavailable)
}

func TestGetPriceRejectedKeyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "bad", BaseURL: srv.URL}, zaptest.NewLogger(t))
	_, err := c.GetPrice(context.Background(), "XAUUSD")
	require.Error(t, err)
	assert.True(t, market.IsPermanent(err))
}

func TestGetRecentCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forex/candle", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("resolution"))
		_, _ = w.Write([]byte(`{
			"s":"ok",
			"o":[2640,2650,2301],
			"h":[2655,2660,2320],
			"l":[2635,2299.5,2295],
			"c":[2650,2301,2310],
			"t":[1735686000,1735689600,1735693200]
		}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	c.now = func() time.Time { return time.Unix(1735696800, 0) }

	candles, err := c.GetRecentCandles(context.Background(), "XAUUSD", "1h", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.InDelta(t, 2299.5, candles[0].Low, 1e-9)
	assert.Equal(t, time.Unix(1735693200, 0).UTC(), candles[1].Timestamp)
}

func TestGetRecentCandlesNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"s":"no_data"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	_, err := c.GetRecentCandles(context.Background(), "XAUUSD", "1h", 3)
	assert.ErrorIs(t, err, market.ErrSourceUnavailable)

	_, err = c.GetRecentCandles(context.Background(), "XAUUSD", "4h", 3)
	assert.True(t, market.IsPermanent(err))
}
