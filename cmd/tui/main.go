package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vanlt3/LifeTime-Swing/internal/api"
	"github.com/vanlt3/LifeTime-Swing/internal/logger"
	"github.com/vanlt3/LifeTime-Swing/internal/ui"
	"go.uber.org/zap"
)

func main() {
	apiURL := flag.String("api", "http://127.0.0.1:8080", "Base URL of the monitor API")
	interval := flag.Duration("interval", 2*time.Second, "Refresh interval")
	logFile := flag.String("log", "logs/sltp-tui.log", "Log file (stdout belongs to the dashboard)")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger, err := newFileLogger(*logFile)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	appLogger.Info("🚀 Starting SL/TP monitor dashboard", zap.String("api", *apiURL))

	client := api.NewClient(*apiURL, 5*time.Second)
	recovery := ui.NewRecoveryHandler(appLogger.Logger, func() (tea.Model, []tea.ProgramOption) {
		dashboard := ui.NewDashboard(client, *apiURL, *interval)
		return ui.NewSafeUIWrapper(dashboard, appLogger.Logger), []tea.ProgramOption{
			tea.WithAltScreen(),
		}
	})

	if err := recovery.RunWithRecovery(rootCtx); err != nil {
		appLogger.Error("💥 Dashboard failed", zap.Error(err))
		return
	}
	appLogger.Info("🛑 Dashboard closed")
}

// newFileLogger keeps logs off the terminal the dashboard draws on.
func newFileLogger(path string) (*logger.Logger, error) {
	cfg := logger.DefaultConfig()
	cfg.File = path
	cfg.Quiet = true
	return logger.New(cfg, nil)
}
