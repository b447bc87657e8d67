// internal/market/binance/binance.go
package binance

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/market"
)

// Name is the provider name used in errors and config.
const Name = "binance"

// Config holds the Binance connection settings. Public market data needs no key.
type Config struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	Symbols   map[string]string
}

// Client serves prices and klines from the Binance spot API.
type Client struct {
	api     *gobinance.Client
	symbols market.SymbolMap
	logger  *zap.Logger
}

// New creates a Binance market data client.
func New(cfg Config, logger *zap.Logger) *Client {
	api := gobinance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		api.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:     api,
		symbols: market.NewSymbolMap(cfg.Symbols),
		logger:  logger.Named("binance"),
	}
}

// GetPrice returns the latest ticker price.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	remote := c.symbols.Resolve(symbol)

	prices, err := c.api.NewListPricesService().Symbol(remote).Do(ctx)
	if err != nil {
		return 0, market.Classify(Name, symbol, err)
	}
	for _, p := range prices {
		if p == nil || p.Symbol != remote {
			continue
		}
		price, err := market.ParsePrice(p.Price)
		if err != nil {
			return 0, market.Unavailable(Name, symbol, err)
		}
		return price, nil
	}
	return 0, market.Unavailable(Name, symbol, errors.New("symbol missing from ticker response"))
}

// GetRecentCandles returns the newest count klines, oldest first.
func (c *Client) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]market.Candle, error) {
	remote := c.symbols.Resolve(symbol)

	klines, err := c.api.NewKlinesService().
		Symbol(remote).
		Interval(timeframe).
		Limit(count).
		Do(ctx)
	if err != nil {
		return nil, market.Classify(Name, symbol, err)
	}

	candles := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := toCandle(k, timeframe)
		if err != nil {
			c.logger.Debug("Skipping malformed kline",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, market.Unavailable(Name, symbol, errors.New("no usable klines"))
	}
	return market.LastN(candles, count), nil
}

func toCandle(k *gobinance.Kline, timeframe string) (market.Candle, error) {
	if k == nil {
		return market.Candle{}, errors.New("nil kline")
	}

	var (
		c   market.Candle
		err error
	)
	if c.Open, err = market.ParsePrice(k.Open); err != nil {
		return c, fmt.Errorf("open: %w", err)
	}
	if c.High, err = market.ParsePrice(k.High); err != nil {
		return c, fmt.Errorf("high: %w", err)
	}
	if c.Low, err = market.ParsePrice(k.Low); err != nil {
		return c, fmt.Errorf("low: %w", err)
	}
	if c.Close, err = market.ParsePrice(k.Close); err != nil {
		return c, fmt.Errorf("close: %w", err)
	}
	if v, err := market.ParsePrice(k.Volume); err == nil {
		c.Volume = v
	}
	c.Timestamp = time.UnixMilli(k.OpenTime).UTC()
	c.Timeframe = timeframe

	return c, c.Validate()
}
