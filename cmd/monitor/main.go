// ====================================
// File: cmd/monitor/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/app"
	"github.com/vanlt3/LifeTime-Swing/internal/config"
	"github.com/vanlt3/LifeTime-Swing/internal/export"
	"github.com/vanlt3/LifeTime-Swing/internal/logger"
	"github.com/vanlt3/LifeTime-Swing/internal/storage/sqlstore"
)

const logBufferSize = 1000

func main() {
	if len(os.Args) > 1 && os.Args[1] == "export" {
		if err := runExport(os.Args[2:]); err != nil {
			log.Fatalf("export failed: %v", err)
		}
		return
	}

	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	buffer := logger.NewLogBuffer(logBufferSize)
	appLogger, err := newLogger(cfg.Log, buffer)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	appLogger.Info("🚀 Starting SL/TP position monitor", zap.String("config", *configPath))

	if err := app.New(cfg, appLogger, buffer).Run(rootCtx); err != nil {
		appLogger.Error("💥 Monitor stopped with error", zap.Error(err))
		_ = appLogger.Sync()
		os.Exit(1)
	}
	appLogger.Info("👋 Monitor stopped")
}

func newLogger(c config.LogConfig, buffer *logger.LogBuffer) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		File:        c.File,
		MaxSizeMB:   c.MaxSizeMB,
		MaxAgeDays:  c.MaxAgeDays,
		MaxBackups:  c.MaxBackups,
		Compress:    c.Compress,
		Development: c.Development,
		Pretty:      true,
	}, buffer)
}

// runExport writes journaled hits to a CSV/JSON file or a daily report.
func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "Path to config file")
	format := fs.String("format", "csv", "csv or json")
	symbol := fs.String("symbol", "", "Only this symbol")
	kind := fs.String("kind", "", "Only STOP or TARGET hits")
	outcome := fs.String("outcome", "", "Only this outcome (detected, closed, close_exhausted, close_skipped)")
	since := fs.String("since", "", "Start time, RFC 3339")
	until := fs.String("until", "", "End time (exclusive), RFC 3339")
	daily := fs.String("daily", "", "Write the daily report for this date (YYYY-MM-DD) instead")
	outDir := fs.String("out", "exports", "Output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("journal is disabled in %s", *configPath)
	}

	appLogger, err := newLogger(cfg.Log, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	ctx := context.Background()
	store, err := sqlstore.Open(ctx, cfg.Journal.Driver, cfg.Journal.DSN, appLogger.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	hits, err := store.ListHits(ctx, strings.ToUpper(strings.TrimSpace(*symbol)), 0)
	if err != nil {
		return err
	}
	exporter := export.NewHitExporter(appLogger.Logger)

	if *daily != "" {
		date, err := time.ParseInLocation("2006-01-02", *daily, time.Local)
		if err != nil {
			return fmt.Errorf("invalid -daily date: %w", err)
		}
		path, err := exporter.ExportDailyReport(hits, date, *outDir)
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Println("No hits on", *daily)
			return nil
		}
		fmt.Println(path)
		return nil
	}

	opts := export.ExportOptions{
		SymbolFilter:  *symbol,
		KindFilter:    *kind,
		OutcomeFilter: *outcome,
		OutputDir:     *outDir,
	}
	if opts.Format, err = export.ParseFormat(*format); err != nil {
		return err
	}
	if opts.StartTime, err = parseOptionalTime(*since); err != nil {
		return fmt.Errorf("invalid -since: %w", err)
	}
	if opts.EndTime, err = parseOptionalTime(*until); err != nil {
		return fmt.Errorf("invalid -until: %w", err)
	}

	path, err := exporter.ExportHits(hits, opts)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
