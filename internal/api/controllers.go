package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"quant-core/internal/kline"
	"quant-core/internal/registry"
	"quant-core/pkg/db"
)

type startMonitorRequest struct {
	Symbol   string `json:"symbol" binding:"required,min=1"`
	Interval string `json:"interval"`
}

type listQuery struct {
	Limit int `form:"limit"`
}

func (q *listQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	status := gin.H{
		"meta":     s.Meta,
		"monitors": len(s.Registry.List()),
	}
	if s.Bus != nil {
		status["dropped_events"] = s.Bus.Dropped()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) listMonitors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"monitors": s.Registry.List()})
}

func (s *Server) getMonitor(c *gin.Context) {
	symbol := c.Param("symbol")
	interval := c.DefaultQuery("interval", s.Meta.Interval)

	mon, ok := s.Registry.Get(symbol, interval)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
		return
	}

	resp := gin.H{"monitor": mon}
	if s.Store != nil {
		if bar, err := s.Store.LatestClosed(symbol, interval); err == nil {
			resp["latest_closed"] = bar
		}
		resp["bars"] = s.Store.Len(symbol, interval)
	}
	if s.Quotes != nil {
		if q, ok := s.Quotes.Get(symbol); ok {
			resp["last_price"] = q.Price
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) startMonitor(c *gin.Context) {
	var req startMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	interval := kline.NormalizeInterval(req.Interval)
	if interval == "" {
		interval = s.Meta.Interval
	}

	if err := s.Engine.StartMonitor(c.Request.Context(), req.Symbol, interval); err != nil {
		if errors.Is(err, registry.ErrAlreadyMonitored) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"symbol": req.Symbol, "interval": interval})
}

func (s *Server) stopMonitor(c *gin.Context) {
	symbol := c.Param("symbol")
	interval := c.DefaultQuery("interval", s.Meta.Interval)

	if err := s.Engine.StopMonitor(symbol, interval); err != nil {
		if errors.Is(err, registry.ErrNotMonitored) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "status": "stopped"})
}

func (s *Server) listOrders(c *gin.Context) {
	var q listQuery
	_ = c.ShouldBindQuery(&q)
	q.normalize()

	orders, err := s.Queries.RecentOrders(c.Request.Context(), q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if orders == nil {
		orders = []db.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) listTrades(c *gin.Context) {
	var q listQuery
	_ = c.ShouldBindQuery(&q)
	q.normalize()

	trades, err := s.Queries.RecentTrades(c.Request.Context(), q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trades == nil {
		trades = []db.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) listSignals(c *gin.Context) {
	var q listQuery
	_ = c.ShouldBindQuery(&q)
	q.normalize()
	symbol := c.Query("symbol")

	signals, err := s.Queries.RecentSignalEvents(c.Request.Context(), symbol, q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if signals == nil {
		signals = []db.SignalEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// listLiveSignals reads the Redis-mirrored signal history. Unlike /signals
// it survives engine restarts only as long as the Redis TTL.
func (s *Server) listLiveSignals(c *gin.Context) {
	if s.Snapshots == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot publishing disabled"})
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	since := time.Now().Add(-24 * time.Hour).UnixMilli()
	if v := c.Query("since"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = n
		}
	}

	signals, err := s.Snapshots.RecentSignals(c.Request.Context(), symbol, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) getRiskMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": s.Gate.Metrics()})
}

func (s *Server) getDailyRiskMetrics(c *gin.Context) {
	date := c.DefaultQuery("date", time.Now().UTC().Format("2006-01-02"))
	metrics, err := s.Queries.GetRiskMetrics(c.Request.Context(), date)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no metrics for " + date})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": metrics})
}

func (s *Server) getPrices(c *gin.Context) {
	if s.Quotes == nil {
		c.JSON(http.StatusOK, gin.H{"prices": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"prices": s.Quotes.GetAll(),
		"stats":  s.Quotes.Stats(),
	})
}
