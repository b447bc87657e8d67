// internal/market/stream/stream.go
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/market"
)

const Name = "stream"

// Config describes a ticker websocket. Messages may be plain ticker frames
// ({"s":"BTCUSDT","c":"..."}), book tickers ({"s":..,"b":..,"a":..}) or the
// combined-stream envelope {"stream":..,"data":{...}}.
type Config struct {
	URL          string
	MaxAge       time.Duration
	Symbols      map[string]string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

type quote struct {
	price float64
	at    time.Time
}

// Client keeps the last price per symbol from a websocket ticker stream.
type Client struct {
	url     string
	maxAge  time.Duration
	symbols market.SymbolMap
	dialer  *websocket.Dialer
	logger  *zap.Logger
	now     func() time.Time

	reconnectMin time.Duration
	reconnectMax time.Duration

	mu     sync.RWMutex
	quotes map[string]quote
}

// New creates a stream client. Call Run to start receiving.
func New(cfg Config, logger *zap.Logger) *Client {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	reconnectMin := cfg.ReconnectMin
	if reconnectMin <= 0 {
		reconnectMin = time.Second
	}
	reconnectMax := cfg.ReconnectMax
	if reconnectMax <= 0 {
		reconnectMax = 30 * time.Second
	}
	return &Client{
		url:          cfg.URL,
		maxAge:       maxAge,
		symbols:      market.NewSymbolMap(cfg.Symbols),
		dialer:       websocket.DefaultDialer,
		logger:       logger.Named("price_stream"),
		now:          time.Now,
		reconnectMin: reconnectMin,
		reconnectMax: reconnectMax,
		quotes:       make(map[string]quote),
	}
}

// GetPrice returns the cached price if it is fresh enough.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	key := strings.ToUpper(c.symbols.Resolve(symbol))

	c.mu.RLock()
	q, ok := c.quotes[key]
	c.mu.RUnlock()

	if !ok {
		return 0, market.Unavailable(Name, symbol, errors.New("no quote received yet"))
	}
	if age := c.now().Sub(q.at); age > c.maxAge {
		return 0, market.Unavailable(Name, symbol, fmt.Errorf("quote is stale (%s old)", age.Round(time.Second)))
	}
	return q.price, nil
}

// Run connects and reads until ctx is cancelled, reconnecting with
// exponential backoff when the connection drops.
func (c *Client) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.reconnectMin
	policy.MaxInterval = c.reconnectMax
	policy.Reset()

	for {
		err := c.session(ctx, policy)
		if ctx.Err() != nil {
			c.logger.Info("🔌 Price stream stopped")
			return nil
		}

		wait := policy.NextBackOff()
		c.logger.Warn("Price stream disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("retry_in", wait))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Client) session(ctx context.Context, policy *backoff.ExponentialBackOff) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	conn.SetReadLimit(2 << 20)
	policy.Reset()
	c.logger.Info("🔌 Price stream connected", zap.String("url", c.url))

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	payload := gjson.ParseBytes(data)
	if inner := payload.Get("data"); inner.Exists() {
		payload = inner
	}

	symbol := payload.Get("s").String()
	if symbol == "" {
		return
	}

	var (
		price float64
		err   error
	)
	switch {
	case payload.Get("c").Exists():
		price, err = market.ParsePrice(payload.Get("c").String())
	case payload.Get("b").Exists() && payload.Get("a").Exists():
		var bid, ask float64
		if bid, err = market.ParsePrice(payload.Get("b").String()); err == nil {
			if ask, err = market.ParsePrice(payload.Get("a").String()); err == nil {
				price = (bid + ask) / 2
			}
		}
	default:
		return
	}
	if err != nil {
		c.logger.Debug("Ignoring unparsable tick", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	c.mu.Lock()
	c.quotes[strings.ToUpper(symbol)] = quote{price: price, at: c.now()}
	c.mu.Unlock()
}
