package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quant-core/internal/api"
	"quant-core/internal/bootstrap"
	"quant-core/internal/engine"
	"quant-core/internal/events"
	"quant-core/internal/kline"
	"quant-core/internal/market"
	"quant-core/internal/order"
	"quant-core/internal/persistence"
	"quant-core/internal/reconciliation"
	"quant-core/internal/registry"
	"quant-core/internal/risk"
	"quant-core/internal/scheduler"
	"quant-core/internal/snapshot"
	"quant-core/internal/strategy"
	"quant-core/internal/symbols"
	"quant-core/pkg/cache"
	"quant-core/pkg/config"
	"quant-core/pkg/db"
	"quant-core/pkg/exchange"
	"quant-core/pkg/exchange/deepcoin"
	"quant-core/pkg/market/backpack"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.Printf("[MAIN] starting on :%s interval=%s symbols=%v dry_run=%v mock=%v",
		cfg.Port, cfg.Interval, cfg.Symbols, cfg.DryRun, cfg.UseMockFeed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()
	store := kline.NewStore(cfg.MaxBars)
	reg := registry.New()
	quotes := cache.NewShardedQuoteCache()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("[MAIN] open database: %v", err)
	}
	defer database.Close()
	if err := db.Migrate(database.DB); err != nil {
		log.Fatalf("[MAIN] migrate database: %v", err)
	}
	queries := db.NewQueries(database.DB)

	// Symbol mapping table
	translator, err := symbols.LoadFile(cfg.MappingPath)
	if err != nil {
		log.Fatalf("[MAIN] load symbol mappings %s: %v", cfg.MappingPath, err)
	}

	// Market data source
	var (
		feed    market.Feed
		history bootstrap.HistorySource
	)
	if cfg.UseMockFeed {
		mock := market.NewMockFeed()
		feed, history = mock, mock
		log.Println("[MAIN] using mock market feed")
	} else {
		feed = &market.LiveFeed{Stream: backpack.NewStreamClient(cfg.DataWSBaseURL)}
		history = backpack.NewClient(cfg.DataRESTBaseURL)
	}

	// Execution venue
	var gateway exchange.Gateway
	venue := "deepcoin"
	if cfg.DryRun {
		venue = "dry-run"
		gateway = exchange.NewDryRunGateway(exchange.DryRunConfig{
			SlippageBps: 2,
			LatencyMs:   120,
		})
	} else {
		gateway = deepcoin.New(deepcoin.Config{
			BaseURL:    cfg.VenueBaseURL,
			APIKey:     cfg.VenueAPIKey,
			APISecret:  cfg.VenueAPISecret,
			Passphrase: cfg.VenuePassphrase,
		})
	}
	log.Printf("[MAIN] execution venue: %s", venue)

	// Strategy decision collaborator
	var decider strategy.Decider
	switch cfg.DeciderMode {
	case "remote":
		if cfg.DeciderURL == "" {
			log.Fatal("[MAIN] DECIDER_MODE=remote requires DECIDER_URL")
		}
		decider = strategy.NewRemoteDecider(cfg.DeciderURL)
	default:
		decider = strategy.NewRuleDecider(cfg.BaseOrderSize)
	}
	log.Printf("[MAIN] decider: %s (timeout %s)", decider.Name(), cfg.DeciderTimeout)

	// Optional Redis snapshot publisher
	snapshots, err := snapshot.New(cfg.RedisAddr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		log.Printf("[MAIN] redis snapshots disabled: %v", err)
	} else if snapshots != nil {
		defer snapshots.Close()
		log.Printf("[MAIN] redis snapshots enabled at %s", cfg.RedisAddr)
	}

	// Pipeline components
	sched := scheduler.New(store, bus)
	boot := &bootstrap.Bootstrapper{
		Source:     history,
		Store:      store,
		Bus:        bus,
		Registry:   reg,
		Translator: translator,
		Limit:      cfg.HistoryLimit,
		MinBars:    cfg.MinHistoryBars,
		Retries:    cfg.BootstrapRetries,
	}
	runner := &strategy.Runner{
		Store:             store,
		Bus:               bus,
		Registry:          reg,
		Decider:           decider,
		Timeout:           cfg.DeciderTimeout,
		DeepWindow:        cfg.DeepWindow,
		IncrementalWindow: cfg.IncrWindow,
	}
	gate := risk.NewGate(risk.Config{
		CooldownBars:   cfg.CooldownBars,
		MarginFraction: cfg.MarginFraction,
		Leverage:       cfg.Leverage,
		MaxDailyTrades: cfg.MaxDailyTrades,
		MaxDailyLoss:   cfg.MaxDailyLoss,
		MinOrderValue:  10,
	})
	router := order.NewRouter(gateway, queries, bus, translator, cfg.Leverage)

	// Closed bars are archived off the hot path.
	barWriter := persistence.NewBarWriter(database.DB, 50, time.Second)
	defer barWriter.Close()
	go func() {
		closes, unsub := bus.Subscribe(events.EventBarClosed, 256)
		defer unsub()
		for msg := range closes {
			if bc, ok := msg.(scheduler.BarClosed); ok {
				barWriter.Write(bc.Bar)
			}
		}
	}()

	eng := &engine.Engine{
		Store:        store,
		Bus:          bus,
		Registry:     reg,
		Bootstrapper: boot,
		Scheduler:    sched,
		Runner:       runner,
		Gate:         gate,
		Router:       router,
		Feed:         feed,
		Translator:   translator,
		Quotes:       quotes,
		Snapshots:    snapshots,
		Queries:      queries,
		Gateway:      gateway,
		Equity:       cfg.DryRunEquity,
	}
	go eng.Run(ctx)

	// Position reconciliation releases cooldowns when the venue reports a
	// position closed.
	recon := reconciliation.NewService(gateway, queries, gate, translator, time.Minute)
	recon.Start(ctx)

	// Persist the day's risk counters and reset them at UTC midnight.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		day := time.Now().UTC().Format("2006-01-02")
		for {
			select {
			case <-ctx.Done():
				persistRiskMetrics(queries, gate, day)
				return
			case <-ticker.C:
				persistRiskMetrics(queries, gate, day)
				if today := time.Now().UTC().Format("2006-01-02"); today != day {
					gate.ResetDailyMetrics()
					day = today
				}
			}
		}
	}()

	// Stale quotes from stopped monitors are evicted periodically.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := quotes.Cleanup(30 * time.Minute); removed > 0 {
					log.Printf("[MAIN] evicted %d stale quote(s)", removed)
				}
			}
		}
	}()

	// Start configured monitors
	for _, symbol := range cfg.Symbols {
		if err := eng.StartMonitor(ctx, symbol, cfg.Interval); err != nil {
			log.Printf("[MAIN] start monitor %s: %v", symbol, err)
		}
	}

	// HTTP surface
	server := api.NewServer(bus, reg, store, gate, quotes, queries, snapshots, eng, api.SystemMeta{
		DryRun:      cfg.DryRun,
		Venue:       venue,
		Interval:    cfg.Interval,
		UseMockFeed: cfg.UseMockFeed,
		Version:     version(),
	})
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router,
	}
	go func() {
		log.Printf("[MAIN] HTTP listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[MAIN] http server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[MAIN] shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[MAIN] http shutdown: %v", err)
	}
	log.Printf("[MAIN] stopped; dropped bus events: %d, duplicate fires suppressed: %d",
		bus.Dropped(), sched.DuplicateFires())
}

func persistRiskMetrics(queries *db.Queries, gate *risk.Gate, date string) {
	m := gate.Metrics()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := queries.UpsertRiskMetrics(ctx, db.RiskMetrics{
		Date:        date,
		DailyPnL:    m.DailyPnL,
		DailyTrades: m.DailyTrades,
		DailyWins:   m.DailyWins,
		DailyLosses: m.DailyLosses,
	})
	if err != nil {
		log.Printf("[MAIN] persist risk metrics: %v", err)
	}
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v1.0-dev"
}
