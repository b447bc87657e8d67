// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vanlt3/LifeTime-Swing/internal/position"
	"github.com/vanlt3/LifeTime-Swing/internal/retry"
)

const EnvPrefix = "SLTP_MONITOR"

type Config struct {
	Monitor   MonitorConfig    `mapstructure:"monitor"`
	Providers ProvidersConfig  `mapstructure:"providers"`
	Alerts    AlertsConfig     `mapstructure:"alerts"`
	Journal   JournalConfig    `mapstructure:"journal"`
	API       APIConfig        `mapstructure:"api"`
	Closer    CloserConfig     `mapstructure:"closer"`
	License   LicenseConfig    `mapstructure:"license"`
	Log       LogConfig        `mapstructure:"log"`
	Positions []PositionConfig `mapstructure:"positions"`
}

type MonitorConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	WickDetection  bool          `mapstructure:"wick_detection"`
	WickCandles    int           `mapstructure:"wick_candles"`
	Timeframe      string        `mapstructure:"timeframe"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	FetchRetry     retry.Policy  `mapstructure:"fetch_retry"`
	CloseTimeout   time.Duration `mapstructure:"close_timeout"`
	CloseRetry     retry.Policy  `mapstructure:"close_retry"`
	ClaimLease     time.Duration `mapstructure:"claim_lease"`
	UnhealthyAfter int           `mapstructure:"unhealthy_after"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
}

// ProvidersConfig lists market data providers. Order is the failover priority.
type ProvidersConfig struct {
	Order   []string      `mapstructure:"order"`
	Timeout time.Duration `mapstructure:"timeout"`
	Binance BinanceConfig `mapstructure:"binance"`
	Finnhub FinnhubConfig `mapstructure:"finnhub"`
	EODHD   EODHDConfig   `mapstructure:"eodhd"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

type BinanceConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	APIKey    string            `mapstructure:"api_key"`
	SecretKey string            `mapstructure:"secret_key"`
	BaseURL   string            `mapstructure:"base_url"`
	Symbols   map[string]string `mapstructure:"symbols"`
}

type FinnhubConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	APIKey     string            `mapstructure:"api_key"`
	BaseURL    string            `mapstructure:"base_url"`
	CandlePath string            `mapstructure:"candle_path"`
	Symbols    map[string]string `mapstructure:"symbols"`
}

type EODHDConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	APIKey  string            `mapstructure:"api_key"`
	BaseURL string            `mapstructure:"base_url"`
	Symbols map[string]string `mapstructure:"symbols"`
}

type StreamConfig struct {
	Enabled bool              `mapstructure:"enabled"`
	URL     string            `mapstructure:"url"`
	MaxAge  time.Duration     `mapstructure:"max_age"`
	Symbols map[string]string `mapstructure:"symbols"`
}

type AlertsConfig struct {
	Cooldown   time.Duration  `mapstructure:"cooldown"`
	MaxHistory int            `mapstructure:"max_history"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Discord    DiscordConfig  `mapstructure:"discord"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Metrics bool   `mapstructure:"metrics"`
}

const (
	CloserPaper   = "paper"
	CloserWebhook = "webhook"
)

type CloserConfig struct {
	Mode    string        `mapstructure:"mode"`
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LicenseConfig struct {
	Key     string `mapstructure:"key"`
	Account string `mapstructure:"account"`
	Product string `mapstructure:"product"`
}

type LogConfig struct {
	File        string `mapstructure:"file"`
	Development bool   `mapstructure:"development"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// PositionConfig seeds a position at startup. OpenedAt is RFC 3339; empty
// means the time the monitor starts.
type PositionConfig struct {
	Symbol      string  `mapstructure:"symbol"`
	Direction   string  `mapstructure:"direction"`
	EntryPrice  float64 `mapstructure:"entry_price"`
	StopPrice   float64 `mapstructure:"stop_price"`
	TargetPrice float64 `mapstructure:"target_price"`
	OpenedAt    string  `mapstructure:"opened_at"`
}

// Position converts the seed into a validated position.
func (p PositionConfig) Position() (position.Position, error) {
	dir, err := position.ParseDirection(p.Direction)
	if err != nil {
		return position.Position{}, err
	}
	pos := position.Position{
		Symbol:      position.NormalizeSymbol(p.Symbol),
		Direction:   dir,
		EntryPrice:  p.EntryPrice,
		StopPrice:   p.StopPrice,
		TargetPrice: p.TargetPrice,
	}
	if p.OpenedAt != "" {
		at, err := time.Parse(time.RFC3339, p.OpenedAt)
		if err != nil {
			return position.Position{}, fmt.Errorf("%w: opened_at %q: %v", position.ErrInvalidPosition, p.OpenedAt, err)
		}
		pos.OpenedAt = at
	}
	return pos, pos.Validate()
}

var defaults = map[string]interface{}{
	"monitor.tick_interval":            "30s",
	"monitor.wick_detection":           true,
	"monitor.wick_candles":             3,
	"monitor.timeframe":                "1h",
	"monitor.fetch_timeout":            "10s",
	"monitor.fetch_retry.max_attempts": 3,
	"monitor.fetch_retry.base_delay":   "500ms",
	"monitor.fetch_retry.max_delay":    "5s",
	"monitor.fetch_retry.jitter":       0.2,
	"monitor.close_timeout":            "15s",
	"monitor.close_retry.max_attempts": 5,
	"monitor.close_retry.base_delay":   "1s",
	"monitor.close_retry.max_delay":    "30s",
	"monitor.close_retry.jitter":       0.2,
	"monitor.claim_lease":              "0s",
	"monitor.unhealthy_after":          3,
	"monitor.stale_after":              "0s",

	"providers.order":               []string{"stream", "binance", "finnhub", "eodhd"},
	"providers.timeout":             "10s",
	"providers.binance.enabled":     false,
	"providers.binance.api_key":     "",
	"providers.binance.secret_key":  "",
	"providers.binance.base_url":    "",
	"providers.finnhub.enabled":     false,
	"providers.finnhub.api_key":     "",
	"providers.finnhub.base_url":    "",
	"providers.finnhub.candle_path": "/forex/candle",
	"providers.eodhd.enabled":       false,
	"providers.eodhd.api_key":       "",
	"providers.eodhd.base_url":      "",
	"providers.stream.enabled":      false,
	"providers.stream.url":          "",
	"providers.stream.max_age":      "1m",

	"alerts.cooldown":            "5m",
	"alerts.max_history":         1000,
	"alerts.telegram.enabled":    false,
	"alerts.telegram.token":      "",
	"alerts.telegram.chat_id":    0,
	"alerts.discord.enabled":     false,
	"alerts.discord.webhook_url": "",

	"journal.enabled": false,
	"journal.driver":  "sqlite",
	"journal.dsn":     "sltp-journal.db",

	"api.enabled": true,
	"api.listen":  "127.0.0.1:8080",
	"api.metrics": true,

	"closer.mode":    CloserPaper,
	"closer.url":     "",
	"closer.token":   "",
	"closer.timeout": "15s",

	"license.key":     "",
	"license.account": "",
	"license.product": "",

	"log.file":         "logs/sltp-monitor.log",
	"log.development":  false,
	"log.max_size_mb":  100,
	"log.max_backups":  5,
	"log.max_age_days": 30,
	"log.compress":     true,
}

// Load reads the config file at path (optional), a .env file in the working
// directory (optional) and SLTP_MONITOR_* environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	loadEnvironmentVariables(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Comma-separated lists are not split by viper's env binding.
func loadEnvironmentVariables(cfg *Config) {
	if order := os.Getenv(EnvPrefix + "_PROVIDERS_ORDER"); order != "" {
		var clean []string
		for _, name := range strings.Split(order, ",") {
			if name = strings.TrimSpace(name); name != "" {
				clean = append(clean, strings.ToLower(name))
			}
		}
		if len(clean) > 0 {
			cfg.Providers.Order = clean
		}
	}
}

// EnabledProviders returns the enabled provider names in priority order.
func (c *Config) EnabledProviders() []string {
	enabled := map[string]bool{
		"binance": c.Providers.Binance.Enabled,
		"finnhub": c.Providers.Finnhub.Enabled,
		"eodhd":   c.Providers.EODHD.Enabled,
		"stream":  c.Providers.Stream.Enabled,
	}
	var out []string
	for _, name := range c.Providers.Order {
		if enabled[name] {
			out = append(out, name)
			enabled[name] = false
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Monitor.TickInterval <= 0 {
		return errors.New("monitor.tick_interval must be positive")
	}
	if c.Monitor.FetchTimeout <= 0 || c.Monitor.CloseTimeout <= 0 {
		return errors.New("monitor timeouts must be positive")
	}
	if c.Monitor.FetchRetry.MaxAttempts < 1 || c.Monitor.CloseRetry.MaxAttempts < 1 {
		return errors.New("monitor retry max_attempts must be at least 1")
	}
	if c.Monitor.ClaimLease < 0 {
		return errors.New("monitor.claim_lease must not be negative")
	}
	if c.Monitor.UnhealthyAfter < 1 {
		return errors.New("monitor.unhealthy_after must be at least 1")
	}

	for _, name := range c.Providers.Order {
		switch name {
		case "binance", "finnhub", "eodhd", "stream":
		default:
			return fmt.Errorf("unknown provider %q in providers.order", name)
		}
	}
	if len(c.EnabledProviders()) == 0 {
		return errors.New("no market data provider enabled")
	}
	if c.Providers.Finnhub.Enabled && c.Providers.Finnhub.APIKey == "" {
		return errors.New("providers.finnhub.api_key is required")
	}
	if c.Providers.EODHD.Enabled && c.Providers.EODHD.APIKey == "" {
		return errors.New("providers.eodhd.api_key is required")
	}
	if c.Providers.Stream.Enabled {
		if err := validateURL(c.Providers.Stream.URL, "ws"); err != nil {
			return fmt.Errorf("providers.stream.url: %w", err)
		}
	}

	if c.Alerts.Telegram.Enabled && (c.Alerts.Telegram.Token == "" || c.Alerts.Telegram.ChatID == 0) {
		return errors.New("alerts.telegram needs token and chat_id")
	}
	if c.Alerts.Discord.Enabled {
		if err := validateURL(c.Alerts.Discord.WebhookURL, "https"); err != nil {
			return errors.New("discord webhook URL must use HTTPS")
		}
	}

	if c.Journal.Enabled {
		switch c.Journal.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("unsupported journal driver %q", c.Journal.Driver)
		}
		if c.Journal.DSN == "" {
			return errors.New("journal.dsn is required")
		}
	}

	switch c.Closer.Mode {
	case CloserPaper:
	case CloserWebhook:
		if err := validateURL(c.Closer.URL, "http"); err != nil {
			return fmt.Errorf("closer.url: %w", err)
		}
	default:
		return fmt.Errorf("unknown closer mode %q", c.Closer.Mode)
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}
