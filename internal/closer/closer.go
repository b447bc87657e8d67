// internal/closer/closer.go
package closer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/detector"
)

// Paper records closes in memory. It stands in for a broker in dry runs.
type Paper struct {
	mu     sync.Mutex
	closed map[string]detector.Result
	logger *zap.Logger
}

// NewPaper creates a paper closer.
func NewPaper(logger *zap.Logger) *Paper {
	return &Paper{
		closed: make(map[string]detector.Result),
		logger: logger.Named("paper_closer"),
	}
}

// Close records the hit. Repeated calls for the same hit are no-ops.
func (p *Paper) Close(_ context.Context, symbol string, hit detector.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.closed[symbol]; ok && IdempotencyKey(symbol, prev) == IdempotencyKey(symbol, hit) {
		return nil
	}
	p.closed[symbol] = hit

	p.logger.Info("📝 Paper close",
		zap.String("symbol", symbol),
		zap.String("kind", string(hit.Kind)),
		zap.String("method", string(hit.Method)),
		zap.Float64("price", hit.Evidence.Price))
	return nil
}

// Closed returns the last recorded close for symbol.
func (p *Paper) Closed(symbol string) (detector.Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.closed[symbol]
	return r, ok
}

// IdempotencyKey is stable for every retry of the same detected hit.
func IdempotencyKey(symbol string, hit detector.Result) string {
	name := fmt.Sprintf("%s|%s|%s|%d", symbol, hit.Kind, hit.Method, hit.DetectedAt.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Webhook asks an external execution service to close positions.
// 2xx and 409 Conflict (already closed) are success.
type Webhook struct {
	url    string
	token  string
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a webhook closer.
func NewWebhook(url, token string, timeout time.Duration, logger *zap.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Webhook{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("webhook_closer"),
	}
}

type closeRequest struct {
	IdempotencyKey string    `json:"idempotency_key"`
	Symbol         string    `json:"symbol"`
	Reason         string    `json:"reason"`
	Method         string    `json:"method"`
	Threshold      float64   `json:"threshold"`
	ObservedPrice  float64   `json:"observed_price"`
	ObservedAt     time.Time `json:"observed_at"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Close posts the close request.
func (w *Webhook) Close(ctx context.Context, symbol string, hit detector.Result) error {
	key := IdempotencyKey(symbol, hit)
	body, err := json.Marshal(closeRequest{
		IdempotencyKey: key,
		Symbol:         symbol,
		Reason:         string(hit.Kind),
		Method:         string(hit.Method),
		Threshold:      hit.Threshold,
		ObservedPrice:  hit.Evidence.Price,
		ObservedAt:     hit.Evidence.At,
		DetectedAt:     hit.DetectedAt,
	})
	if err != nil {
		return fmt.Errorf("encode close request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build close request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("close %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		w.logger.Info("✅ Close accepted", zap.String("symbol", symbol), zap.String("idempotency_key", key))
		return nil
	case resp.StatusCode == http.StatusConflict:
		w.logger.Info("Position already closed upstream", zap.String("symbol", symbol))
		return nil
	default:
		return fmt.Errorf("close %s: status %d: %s", symbol, resp.StatusCode, bytes.TrimSpace(msg))
	}
}
