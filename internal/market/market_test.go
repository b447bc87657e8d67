package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandleValidate(t *testing.T) {
	assert.NoError(t, Candle{Open: 2650, High: 2660, Low: 2299.5, Close: 2301}.Validate())
	assert.Error(t, Candle{Open: 2650, High: 2640, Low: 2299.5, Close: 2301}.Validate())
	assert.Error(t, Candle{Open: 0, High: 1, Low: 1, Close: 1}.Validate())
}

func TestSymbolMapResolve(t *testing.T) {
	m := NewSymbolMap(map[string]string{"xauusd": "OANDA:XAU_USD"})
	assert.Equal(t, "OANDA:XAU_USD", m.Resolve("XAUUSD"))
	assert.Equal(t, "EURUSD", m.Resolve("EURUSD"))

	var empty SymbolMap
	assert.Equal(t, "BTCUSDT", empty.Resolve("BTCUSDT"))
}

func TestParsePrice(t *testing.T) {
	v, err := ParsePrice(" 2650.35000000 ")
	require.NoError(t, err)
	assert.InDelta(t, 2650.35, v, 1e-9)

	_, err = ParsePrice("NA")
	assert.Error(t, err)
	_, err = ParsePrice("0")
	assert.Error(t, err)
}

func TestTimeframeDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4H":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for tf, want := range cases {
		got, err := TimeframeDuration(tf)
		require.NoError(t, err, tf)
		assert.Equal(t, want, got, tf)
	}

	for _, bad := range []string{"", "h", "0h", "3y", "xm"} {
		_, err := TimeframeDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestCandlesSince(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	candles := []Candle{
		{Timestamp: base},
		{Timestamp: base.Add(time.Hour)},
		{Timestamp: base.Add(2 * time.Hour)},
	}

	// opened mid-way through the second bar
	got := CandlesSince(candles, base.Add(90*time.Minute), time.Hour)
	require.Len(t, got, 2)
	assert.Equal(t, base.Add(time.Hour), got[0].Timestamp)

	assert.Len(t, CandlesSince(candles, time.Time{}, time.Hour), 3)
	assert.Len(t, LastN(candles, 2), 2)
	assert.Equal(t, base.Add(time.Hour), LastN(candles, 2)[0].Timestamp)
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"c":1}`))
		case "/denied":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	body, err := FetchJSON(ctx, srv.Client(), "p", "S", srv.URL+"/ok")
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":1}`, string(body))

	_, err = FetchJSON(ctx, srv.Client(), "p", "S", srv.URL+"/denied")
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	_, err = FetchJSON(ctx, srv.Client(), "p", "S", srv.URL+"/down")
	assert.False(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
