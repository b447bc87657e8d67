// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vanlt3/LifeTime-Swing/internal/alert"
	"github.com/vanlt3/LifeTime-Swing/internal/api"
	"github.com/vanlt3/LifeTime-Swing/internal/closer"
	"github.com/vanlt3/LifeTime-Swing/internal/config"
	"github.com/vanlt3/LifeTime-Swing/internal/events"
	"github.com/vanlt3/LifeTime-Swing/internal/license"
	"github.com/vanlt3/LifeTime-Swing/internal/logger"
	"github.com/vanlt3/LifeTime-Swing/internal/market"
	"github.com/vanlt3/LifeTime-Swing/internal/market/binance"
	"github.com/vanlt3/LifeTime-Swing/internal/market/eodhd"
	"github.com/vanlt3/LifeTime-Swing/internal/market/finnhub"
	"github.com/vanlt3/LifeTime-Swing/internal/market/stream"
	"github.com/vanlt3/LifeTime-Swing/internal/metrics"
	"github.com/vanlt3/LifeTime-Swing/internal/monitor"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
	"github.com/vanlt3/LifeTime-Swing/internal/storage"
	"github.com/vanlt3/LifeTime-Swing/internal/storage/sqlstore"
)

const (
	busBufferSize     = 256
	busHandlerTimeout = 10 * time.Second
	sinkTimeout       = 10 * time.Second
	licenseHeartbeat  = time.Hour
)

// App is the monitor daemon: market sources, monitor, alerting, journal
// and API wired from one Config.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	logs   *logger.LogBuffer
	logger *zap.Logger

	shutdown *ShutdownHandler
	license  *license.KeygenValidator
	bus      *events.Bus
	journal  *sqlstore.Store
	alerts   *alert.Manager
	stream   *stream.Client
	monitor  *monitor.Monitor
	metrics  *metrics.Collector
	server   *api.Server
}

// New creates the daemon. logs may be nil; the API then has no /logs route.
func New(cfg *config.Config, log *logger.Logger, logs *logger.LogBuffer) *App {
	return &App{
		cfg:      cfg,
		log:      log,
		logs:     logs,
		logger:   log.WithComponent("app"),
		shutdown: NewShutdownHandler(log.Logger, 30*time.Second),
	}
}

// Run builds every component, starts monitoring the seed positions and
// blocks until ctx is cancelled, then shuts down in order.
func (a *App) Run(ctx context.Context) error {
	a.license = license.NewKeygenValidator(license.Config{
		Key:     a.cfg.License.Key,
		Account: a.cfg.License.Account,
		Product: a.cfg.License.Product,
	}, a.log.Logger)
	if err := a.license.ValidateLicense(ctx); err != nil {
		return fmt.Errorf("license validation failed: %w", err)
	}

	if err := a.build(ctx); err != nil {
		_ = a.shutdown.Shutdown(context.Background())
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.license.RunHeartbeat(gctx, licenseHeartbeat)
		return nil
	})
	if a.stream != nil {
		g.Go(func() error { return a.stream.Run(gctx) })
	}
	if a.server != nil {
		g.Go(func() error {
			if err := a.server.Start(); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}

	if err := a.monitor.StartMonitoring(gctx, a.seedPositions()); err != nil {
		cancel()
		_ = a.shutdown.Shutdown(context.Background())
		_ = g.Wait()
		return fmt.Errorf("start monitoring: %w", err)
	}
	a.logger.Info("🚀 SL/TP monitor running",
		zap.Int("positions", a.monitor.Registry().Len()),
		zap.Strings("providers", a.cfg.EnabledProviders()))

	<-gctx.Done()
	a.logger.Info("📡 Stop requested")

	shutdownErr := a.shutdown.Shutdown(context.Background())
	groupErr := g.Wait()
	return errors.Join(groupErr, shutdownErr)
}

// Monitor is exposed for tests and embedding.
func (a *App) Monitor() *monitor.Monitor {
	return a.monitor
}

// build wires components and registers their shutdown in dependency
// order: journal, bus, monitor, API. The API stops first.
func (a *App) build(ctx context.Context) error {
	end := a.log.TrackPerformance("build")
	defer end()

	prices, candles, streamClient, err := BuildSources(a.cfg, a.log.Logger)
	if err != nil {
		return err
	}
	a.stream = streamClient

	if a.cfg.Journal.Enabled {
		store, err := sqlstore.Open(ctx, a.cfg.Journal.Driver, a.cfg.Journal.DSN, a.log.Logger)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		a.shutdown.AddCloser("journal", store)
		if err := store.RunMigrations(ctx); err != nil {
			return fmt.Errorf("journal migrations: %w", err)
		}
		a.journal = store
	}

	a.bus = events.NewBus(a.log.Logger, busBufferSize, busHandlerTimeout)
	a.shutdown.Add("event_bus", a.bus.Shutdown)

	sinks, err := a.buildSinks()
	if err != nil {
		return err
	}
	a.alerts = alert.NewManager(alert.Config{
		Cooldown:  a.cfg.Alerts.Cooldown,
		MaxAlerts: a.cfg.Alerts.MaxHistory,
	}, a.log.Logger, sinks...)
	a.alerts.Attach(a.bus)
	if a.journal != nil {
		storage.NewRecorder(a.journal, a.log.Logger).Attach(a.bus)
	}

	closeFn, err := BuildCloser(a.cfg.Closer, a.log.Logger)
	if err != nil {
		return err
	}

	a.monitor, err = monitor.New(monitor.Options{
		Config:  MonitorConfig(a.cfg.Monitor),
		Prices:  prices,
		Candles: candles,
		Close:   closeFn,
		Events:  a.bus,
		Logger:  a.log.Logger,
	})
	if err != nil {
		return fmt.Errorf("create monitor: %w", err)
	}
	a.shutdown.Add("monitor", func(context.Context) error {
		a.monitor.StopMonitoring()
		return nil
	})

	if a.cfg.API.Enabled && a.cfg.API.Metrics {
		a.metrics = metrics.NewCollector(a.monitor, a.log.Logger)
		a.metrics.Attach(a.bus)
	}

	if a.cfg.API.Enabled {
		deps := api.Deps{Monitor: a.monitor, Alerts: a.alerts}
		if a.metrics != nil {
			deps.Metrics = a.metrics.Handler()
		}
		if a.logs != nil {
			deps.Logs = a.logs
		}
		if a.journal != nil {
			deps.Hits = a.journal
		}
		a.server = api.NewServer(a.cfg.API.Listen, deps, a.log.Logger)
		a.shutdown.Add("api", a.server.Shutdown)
	}
	return nil
}

func (a *App) buildSinks() ([]alert.Sink, error) {
	sinks := []alert.Sink{alert.NewLogSink(a.log.Logger)}

	if tg := a.cfg.Alerts.Telegram; tg.Enabled {
		sink, err := alert.NewTelegramSink(tg.Token, tg.ChatID, sinkTimeout)
		if err != nil {
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if dc := a.cfg.Alerts.Discord; dc.Enabled {
		sinks = append(sinks, alert.NewDiscordSink(dc.WebhookURL, sinkTimeout))
	}
	if a.journal != nil {
		sinks = append(sinks, alert.NewJournalSink(a.journal))
	}
	return sinks, nil
}

// seedPositions converts configured positions, skipping invalid ones.
func (a *App) seedPositions() []position.Position {
	out := make([]position.Position, 0, len(a.cfg.Positions))
	for i, pc := range a.cfg.Positions {
		p, err := pc.Position()
		if err != nil {
			a.logger.Warn("⚠️ Skipping invalid seed position",
				zap.Int("index", i),
				zap.String("symbol", pc.Symbol),
				zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

// BuildSources creates the enabled providers in failover order. The stream
// client is returned separately because it must be Run; it serves prices
// only, so it never joins the candle failover.
func BuildSources(cfg *config.Config, logger *zap.Logger) (market.PriceSource, market.CandleSource, *stream.Client, error) {
	p := cfg.Providers
	var (
		prices       []market.NamedPriceSource
		candles      []market.NamedCandleSource
		streamClient *stream.Client
	)

	for _, name := range cfg.EnabledProviders() {
		switch name {
		case "binance":
			c := binance.New(binance.Config{
				APIKey:    p.Binance.APIKey,
				SecretKey: p.Binance.SecretKey,
				BaseURL:   p.Binance.BaseURL,
				Symbols:   p.Binance.Symbols,
			}, logger)
			prices = append(prices, market.NamedPriceSource{Name: name, Source: c})
			candles = append(candles, market.NamedCandleSource{Name: name, Source: c})
		case "finnhub":
			c := finnhub.New(finnhub.Config{
				APIKey:     p.Finnhub.APIKey,
				BaseURL:    p.Finnhub.BaseURL,
				CandlePath: p.Finnhub.CandlePath,
				Symbols:    p.Finnhub.Symbols,
				Timeout:    p.Timeout,
			}, logger)
			prices = append(prices, market.NamedPriceSource{Name: name, Source: c})
			candles = append(candles, market.NamedCandleSource{Name: name, Source: c})
		case "eodhd":
			c := eodhd.New(eodhd.Config{
				APIKey:  p.EODHD.APIKey,
				BaseURL: p.EODHD.BaseURL,
				Symbols: p.EODHD.Symbols,
				Timeout: p.Timeout,
			}, logger)
			prices = append(prices, market.NamedPriceSource{Name: name, Source: c})
			candles = append(candles, market.NamedCandleSource{Name: name, Source: c})
		case "stream":
			streamClient = stream.New(stream.Config{
				URL:     p.Stream.URL,
				MaxAge:  p.Stream.MaxAge,
				Symbols: p.Stream.Symbols,
			}, logger)
			prices = append(prices, market.NamedPriceSource{Name: name, Source: streamClient})
		}
	}

	if len(prices) == 0 {
		return nil, nil, nil, errors.New("no market data provider enabled")
	}
	if cfg.Monitor.WickDetection && len(candles) == 0 {
		return nil, nil, nil, errors.New("wick detection needs a candle provider (binance, finnhub or eodhd)")
	}

	priceSource := market.NewFailover(p.Timeout, logger, prices...)
	var candleSource market.CandleSource
	if len(candles) > 0 {
		candleSource = market.NewFailoverCandles(p.Timeout, logger, candles...)
	}
	return priceSource, candleSource, streamClient, nil
}

// BuildCloser returns the configured close callback.
func BuildCloser(cfg config.CloserConfig, logger *zap.Logger) (monitor.CloseFunc, error) {
	switch cfg.Mode {
	case config.CloserPaper, "":
		return closer.NewPaper(logger).Close, nil
	case config.CloserWebhook:
		return closer.NewWebhook(cfg.URL, cfg.Token, cfg.Timeout, logger).Close, nil
	default:
		return nil, fmt.Errorf("unknown closer mode %q", cfg.Mode)
	}
}

// MonitorConfig converts the config section into monitor settings.
func MonitorConfig(c config.MonitorConfig) monitor.Config {
	return monitor.Config{
		TickInterval:   c.TickInterval,
		WickDetection:  c.WickDetection,
		WickCandles:    c.WickCandles,
		Timeframe:      c.Timeframe,
		FetchTimeout:   c.FetchTimeout,
		FetchRetry:     c.FetchRetry,
		CloseTimeout:   c.CloseTimeout,
		CloseRetry:     c.CloseRetry,
		ClaimLease:     c.ClaimLease,
		UnhealthyAfter: c.UnhealthyAfter,
		StaleAfter:     c.StaleAfter,
	}
}
