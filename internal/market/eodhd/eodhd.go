// internal/market/eodhd/eodhd.go
package eodhd

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
	Name           = "eodhd"
	defaultBaseURL = "https://eodhd.com/api"
)

// Config holds the EODHD REST settings.
type Config struct {
	APIKey  string
	BaseURL string
	Symbols map[string]string
	Timeout time.Duration
}

// Client reads real-time quotes and intraday bars from EODHD.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	symbols market.SymbolMap
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an EODHD client.
func New(cfg Config, logger *zap.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: base,
		apiKey:  cfg.APIKey,
		symbols: market.NewSymbolMap(cfg.Symbols),
		logger:  logger.Named("eodhd"),
		now:     time.Now,
	}
}

// GetPrice returns the "close" field of the real-time endpoint.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	remote := c.symbols.Resolve(symbol)

	q := url.Values{}
	q.Set("api_token", c.apiKey)
	q.Set("fmt", "json")

	body, err := market.FetchJSON(ctx, c.http, Name, symbol,
		c.baseURL+"/real-time/"+url.PathEscape(remote)+"?"+q.Encode())
	if err != nil {
		return 0, err
	}

	closePrice := gjson.GetBytes(body, "close")
	if !closePrice.Exists() {
		return 0, market.Unavailable(Name, symbol, errors.New("response has no close"))
	}
	// "NA" is returned for symbols without a recent print.
	v, err := market.ParsePrice(closePrice.String())
	if err != nil {
		return 0, market.Unavailable(Name, symbol, err)
	}
	return v, nil
}

// GetRecentCandles returns the newest count intraday bars, oldest first.
func (c *Client) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]market.Candle, error) {
	interval := strings.ToLower(timeframe)
	switch interval {
	case "1m", "5m", "1h":
	default:
		return nil, backoff.Permanent(market.Unavailable(Name, symbol,
			fmt.Errorf("timeframe %q not supported by eodhd intraday", timeframe)))
	}
	period, err := market.TimeframeDuration(interval)
	if err != nil {
		return nil, backoff.Permanent(market.Unavailable(Name, symbol, err))
	}

	q := url.Values{}
	q.Set("api_token", c.apiKey)
	q.Set("fmt", "json")
	q.Set("interval", interval)
	q.Set("from", strconv.FormatInt(c.now().Add(-period*time.Duration(count*3+2)).Unix(), 10))

	body, err := market.FetchJSON(ctx, c.http, Name, symbol,
		c.baseURL+"/intraday/"+url.PathEscape(c.symbols.Resolve(symbol))+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	rows := gjson.ParseBytes(body)
	if !rows.IsArray() {
		return nil, market.Unavailable(Name, symbol, errors.New("intraday response is not an array"))
	}

	var candles []market.Candle
	rows.ForEach(func(_, row gjson.Result) bool {
		candle := market.Candle{
			Open:      row.Get("open").Float(),
			High:      row.Get("high").Float(),
			Low:       row.Get("low").Float(),
			Close:     row.Get("close").Float(),
			Volume:    row.Get("volume").Float(),
			Timestamp: time.Unix(row.Get("timestamp").Int(), 0).UTC(),
			Timeframe: timeframe,
		}
		if err := candle.Validate(); err != nil {
			c.logger.Debug("Skipping malformed bar", zap.String("symbol", symbol), zap.Error(err))
			return true
		}
		candles = append(candles, candle)
		return true
	})

	if len(candles) == 0 {
		return nil, market.Unavailable(Name, symbol, errors.New("no usable bars"))
	}
	return market.LastN(candles, count), nil
}
