// Package api exposes the engine's control and inspection surface.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"quant-core/internal/events"
	"quant-core/internal/kline"
	"quant-core/internal/registry"
	"quant-core/internal/risk"
	"quant-core/internal/snapshot"
	"quant-core/pkg/cache"
	"quant-core/pkg/db"
)

// Control is the subset of the engine the API can drive.
type Control interface {
	StartMonitor(ctx context.Context, symbol, interval string) error
	StopMonitor(symbol, interval string) error
}

// Server wires HTTP endpoints around the engine.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Registry  *registry.Registry
	Store     *kline.Store
	Gate      *risk.Gate
	Quotes    *cache.ShardedQuoteCache
	Queries   *db.Queries
	Snapshots *snapshot.Publisher
	Engine    Control
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	DryRun      bool   `json:"dry_run"`
	Venue       string `json:"venue"`
	Interval    string `json:"interval"`
	UseMockFeed bool   `json:"use_mock_feed"`
	Version     string `json:"version"`
}

func NewServer(bus *events.Bus, reg *registry.Registry, store *kline.Store, gate *risk.Gate, quotes *cache.ShardedQuoteCache, queries *db.Queries, snapshots *snapshot.Publisher, engine Control, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Registry:  reg,
		Store:     store,
		Gate:      gate,
		Quotes:    quotes,
		Queries:   queries,
		Snapshots: snapshots,
		Engine:    engine,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		api.GET("/monitors", s.listMonitors)
		api.POST("/monitors", s.startMonitor)
		api.GET("/monitors/:symbol", s.getMonitor)
		api.DELETE("/monitors/:symbol", s.stopMonitor)

		api.GET("/orders", s.listOrders)
		api.GET("/trades", s.listTrades)
		api.GET("/signals", s.listSignals)
		api.GET("/signals/live", s.listLiveSignals)

		api.GET("/risk/metrics", s.getRiskMetrics)
		api.GET("/risk/metrics/daily", s.getDailyRiskMetrics)
		api.GET("/prices", s.getPrices)
	}
}
