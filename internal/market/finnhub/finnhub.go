// internal/market/finnhub/finnhub.go
package finnhub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/market"
)

const (
	Name           = "finnhub"
	defaultBaseURL = "https://finnhub.io/api/v1"
	defaultCandles = "/forex/candle"
)

// Config holds the Finnhub REST settings.
type Config struct {
	APIKey     string
	BaseURL    string
	CandlePath string
	Symbols    map[string]string
	Timeout    time.Duration
}

// Client reads quotes and candles from Finnhub.
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	candlePath string
	symbols    market.SymbolMap
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Finnhub client.
func New(cfg Config, logger *zap.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	candlePath := cfg.CandlePath
	if candlePath == "" {
		candlePath = defaultCandles
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    base,
		apiKey:     cfg.APIKey,
		candlePath: candlePath,
		symbols:    market.NewSymbolMap(cfg.Symbols),
		logger:     logger.Named("finnhub"),
		now:        time.Now,
	}
}

// GetPrice returns the current price (field "c") of the quote endpoint.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", c.symbols.Resolve(symbol))
	q.Set("token", c.apiKey)

	body, err := market.FetchJSON(ctx, c.http, Name, symbol, c.baseURL+"/quote?"+q.Encode())
	if err != nil {
		return 0, err
	}

	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return 0, market.Unavailable(Name, symbol, errors.New(msg.String()))
	}
	price := gjson.GetBytes(body, "c")
	if !price.Exists() {
		return 0, market.Unavailable(Name, symbol, errors.New("quote has no current price"))
	}
	// Finnhub answers unknown symbols with c=0.
	v, err := market.ParsePrice(price.Raw)
	if err != nil {
		return 0, market.Unavailable(Name, symbol, err)
	}
	return v, nil
}

// GetRecentCandles returns the newest count candles, oldest first.
func (c *Client) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]market.Candle, error) {
	resolution, err := resolution(timeframe)
	if err != nil {
		return nil, backoff.Permanent(market.Unavailable(Name, symbol, err))
	}
	period, err := market.TimeframeDuration(timeframe)
	if err != nil {
		return nil, backoff.Permanent(market.Unavailable(Name, symbol, err))
	}

	// Pad the window so weekends and session gaps still leave count bars.
	to := c.now()
	from := to.Add(-period * time.Duration(count*3+2))

	q := url.Values{}
	q.Set("symbol", c.symbols.Resolve(symbol))
	q.Set("resolution", resolution)
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	q.Set("token", c.apiKey)

	body, err := market.FetchJSON(ctx, c.http, Name, symbol, c.baseURL+c.candlePath+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	if status := gjson.GetBytes(body, "s").String(); status != "ok" {
		return nil, market.Unavailable(Name, symbol, fmt.Errorf("candle status %q", status))
	}

	opens := gjson.GetBytes(body, "o").Array()
	highs := gjson.GetBytes(body, "h").Array()
	lows := gjson.GetBytes(body, "l").Array()
	closes := gjson.GetBytes(body, "c").Array()
	times := gjson.GetBytes(body, "t").Array()

	n := len(times)
	if len(opens) != n || len(highs) != n || len(lows) != n || len(closes) != n {
		return nil, market.Unavailable(Name, symbol, errors.New("candle arrays have different lengths"))
	}

	candles := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		candle := market.Candle{
			Open:      opens[i].Float(),
			High:      highs[i].Float(),
			Low:       lows[i].Float(),
			Close:     closes[i].Float(),
			Timestamp: time.Unix(times[i].Int(), 0).UTC(),
			Timeframe: timeframe,
		}
		if err := candle.Validate(); err != nil {
			c.logger.Debug("Skipping malformed candle", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, market.Unavailable(Name, symbol, errors.New("no usable candles"))
	}
	return market.LastN(candles, count), nil
}

func resolution(timeframe string) (string, error) {
	switch strings.ToLower(timeframe) {
	case "1m":
		return "1", nil
	case "5m":
		return "5", nil
	case "15m":
		return "15", nil
	case "30m":
		return "30", nil
	case "1h":
		return "60", nil
	case "1d":
		return "D", nil
	case "1w":
		return "W", nil
	default:
		return "", fmt.Errorf("timeframe %q not supported by finnhub", timeframe)
	}
}
