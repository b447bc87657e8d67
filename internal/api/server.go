// internal/api/server.go
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vanlt3/LifeTime-Swing/internal/alert"
	"github.com/vanlt3/LifeTime-Swing/internal/detector"
	"github.com/vanlt3/LifeTime-Swing/internal/health"
	"github.com/vanlt3/LifeTime-Swing/internal/logger"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
	"github.com/vanlt3/LifeTime-Swing/internal/storage/models"
)

// Monitor is the part of the monitor the API drives.
type Monitor interface {
	GetMonitoringStatus() health.Status
	Positions() []position.Position
	Track(p position.Position) error
	Untrack(symbol string) bool
	UpdateLevels(symbol string, stop, target float64) (position.Position, error)
	Check(ctx context.Context, symbol string) (detector.Result, error)
}

type AlertReader interface {
	GetRecentAlerts(limit int) []alert.Alert
}

type LogReader interface {
	GetRecentLogs(limit int) []logger.LogEntry
}

type HitReader interface {
	ListHits(ctx context.Context, symbol string, limit int) ([]*models.HitRecord, error)
}

// Deps are the read and write models behind the routes. Alerts, Logs,
// Hits and Metrics are optional; their routes answer 404 when unset.
type Deps struct {
	Monitor Monitor
	Alerts  AlertReader
	Logs    LogReader
	Hits    HitReader
	Metrics http.Handler
}

// Server is the operator HTTP API.
type Server struct {
	engine *gin.Engine
	http   *http.Server
	deps   Deps
	logger *zap.Logger
}

// NewServer builds the router. Call Start to listen on addr.
func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	logger = logger.Named("api")

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		engine: engine,
		deps:   deps,
		logger: logger,
		http: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("🌐 API listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.healthz)
	r.GET("/status", s.status)
	r.GET("/alerts", s.alerts)
	r.GET("/logs", s.logs)
	r.GET("/hits", s.hits)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	positions := r.Group("/positions")
	positions.GET("", s.listPositions)
	positions.POST("", s.addPosition)
	positions.DELETE("/:symbol", s.removePosition)
	positions.PUT("/:symbol/levels", s.updateLevels)
	positions.GET("/:symbol/check", s.checkPosition)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("Request failed", fields...)
			return
		}
		logger.Debug("Request served", fields...)
	}
}
