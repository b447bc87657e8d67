// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vanlt3/LifeTime-Swing/internal/alert"
	"github.com/vanlt3/LifeTime-Swing/internal/market"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

type positionRequest struct {
	Symbol      string     `json:"symbol" binding:"required"`
	Direction   string     `json:"direction" binding:"required"`
	EntryPrice  float64    `json:"entry_price" binding:"required"`
	StopPrice   float64    `json:"stop_price" binding:"required"`
	TargetPrice float64    `json:"target_price" binding:"required"`
	OpenedAt    *time.Time `json:"opened_at"`
}

type levelsRequest struct {
	StopPrice   float64 `json:"stop_price" binding:"required"`
	TargetPrice float64 `json:"target_price" binding:"required"`
}

func errorJSON(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func limitParam(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func (s *Server) healthz(c *gin.Context) {
	st := s.deps.Monitor.GetMonitoringStatus()
	unhealthy := st.Unhealthy()

	switch {
	case !st.Active:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "inactive"})
	case len(unhealthy) > 0 || len(st.PendingCloses) > 0:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":         "degraded",
			"unhealthy":      unhealthy,
			"pending_closes": st.PendingCloses,
		})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "positions": st.PositionsCount})
	}
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Monitor.GetMonitoringStatus())
}

func (s *Server) alerts(c *gin.Context) {
	if s.deps.Alerts == nil {
		errorJSON(c, http.StatusNotFound, errors.New("alerts are not enabled"))
		return
	}
	all := s.deps.Alerts.GetRecentAlerts(limitParam(c))
	symbol := position.NormalizeSymbol(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusOK, all)
		return
	}
	filtered := make([]alert.Alert, 0, len(all))
	for _, a := range all {
		if a.Symbol == symbol {
			filtered = append(filtered, a)
		}
	}
	c.JSON(http.StatusOK, filtered)
}

func (s *Server) logs(c *gin.Context) {
	if s.deps.Logs == nil {
		errorJSON(c, http.StatusNotFound, errors.New("log buffer is not enabled"))
		return
	}
	c.JSON(http.StatusOK, s.deps.Logs.GetRecentLogs(limitParam(c)))
}

func (s *Server) hits(c *gin.Context) {
	if s.deps.Hits == nil {
		errorJSON(c, http.StatusNotFound, errors.New("journal is not enabled"))
		return
	}
	hits, err := s.deps.Hits.ListHits(c.Request.Context(), position.NormalizeSymbol(c.Query("symbol")), limitParam(c))
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

func (s *Server) listPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Monitor.Positions())
}

func (s *Server) addPosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	dir, err := position.ParseDirection(req.Direction)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	pos := position.Position{
		Symbol:      req.Symbol,
		Direction:   dir,
		EntryPrice:  req.EntryPrice,
		StopPrice:   req.StopPrice,
		TargetPrice: req.TargetPrice,
	}
	if req.OpenedAt != nil {
		pos.OpenedAt = *req.OpenedAt
	}

	if err := s.deps.Monitor.Track(pos); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, position.ErrInvalidPosition) {
			status = http.StatusBadRequest
		}
		errorJSON(c, status, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"symbol": position.NormalizeSymbol(req.Symbol), "tracked": true})
}

func (s *Server) removePosition(c *gin.Context) {
	symbol := position.NormalizeSymbol(c.Param("symbol"))
	if !s.deps.Monitor.Untrack(symbol) {
		errorJSON(c, http.StatusNotFound, position.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) updateLevels(c *gin.Context) {
	var req levelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	pos, err := s.deps.Monitor.UpdateLevels(c.Param("symbol"), req.StopPrice, req.TargetPrice)
	switch {
	case errors.Is(err, position.ErrNotFound):
		errorJSON(c, http.StatusNotFound, err)
	case errors.Is(err, position.ErrInvalidPosition):
		errorJSON(c, http.StatusBadRequest, err)
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err)
	default:
		c.JSON(http.StatusOK, pos)
	}
}

func (s *Server) checkPosition(c *gin.Context) {
	res, err := s.deps.Monitor.Check(c.Request.Context(), c.Param("symbol"))
	switch {
	case errors.Is(err, position.ErrNotFound):
		errorJSON(c, http.StatusNotFound, err)
	case errors.Is(err, market.ErrTimeout):
		errorJSON(c, http.StatusGatewayTimeout, err)
	case err != nil:
		errorJSON(c, http.StatusBadGateway, err)
	default:
		c.JSON(http.StatusOK, gin.H{"hit": res.Hit(), "result": res})
	}
}
