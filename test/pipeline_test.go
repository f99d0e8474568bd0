package main

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"quant-core/internal/bootstrap"
	"quant-core/internal/events"
	"quant-core/internal/indicators"
	"quant-core/internal/kline"
	"quant-core/internal/order"
	"quant-core/internal/registry"
	"quant-core/internal/risk"
	"quant-core/internal/scheduler"
	"quant-core/internal/strategy"
	"quant-core/internal/symbols"
	"quant-core/pkg/db"
	"quant-core/pkg/exchange"
)

const (
	pipelineSymbol   = "ETH_USDC_PERP"
	pipelineInterval = "15m"
	stepMs           = int64(15 * 60 * 1000)
)

// syntheticHistory serves deterministic closed bars for the bootstrapper.
type syntheticHistory struct {
	bars int
}

func (s *syntheticHistory) Klines(ctx context.Context, symbol, interval string, limit int) ([]json.RawMessage, error) {
	n := s.bars
	if limit < n {
		n = limit
	}
	records := make([]json.RawMessage, 0, n)
	price := 2500.0
	for i := 0; i < n; i++ {
		ts := int64(i+1) * stepMs
		rec := fmt.Sprintf(`{"start":%d,"o":"%.2f","h":"%.2f","l":"%.2f","c":"%.2f","v":"25"}`,
			ts, price, price+6, price-2, price+5)
		records = append(records, json.RawMessage(rec))
		price += 5
	}
	return records, nil
}

// fillingGateway fills every market order at the requested mark.
type fillingGateway struct {
	submitted []exchange.OrderRequest
}

func (g *fillingGateway) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	g.submitted = append(g.submitted, req)
	return exchange.OrderResult{
		ExchangeOrderID: "ex-" + req.ClientID,
		Status:          exchange.StatusFilled,
		FillPrice:       3010,
	}, nil
}

func (g *fillingGateway) GetPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	return nil, nil
}

// longOnIncremental emits one LONG per incremental pass.
type longOnIncremental struct{}

func (longOnIncremental) Name() string { return "long-on-incremental" }

func (longOnIncremental) Decide(ctx context.Context, window []kline.Bar, ind indicators.Snapshot, mode strategy.Mode) (*strategy.Signal, error) {
	if mode != strategy.ModeIncremental {
		return nil, nil
	}
	lastClose := window[len(window)-1].Close
	return &strategy.Signal{
		Direction:     strategy.DirectionLong,
		Confidence:    0.8,
		SuggestedSize: 0.5,
		StopLoss:      lastClose * 0.99,
		TakeProfit:    lastClose * 1.02,
		Reason:        "synthetic confluence",
	}, nil
}

func TestSignalToFillPipeline(t *testing.T) {
	ctx := context.Background()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	queries := db.NewQueries(database.DB)

	translator, err := symbols.New([]symbols.Mapping{
		{Logical: pipelineSymbol, DataSource: pipelineSymbol, Execution: "ETH-USDT-SWAP"},
	})
	if err != nil {
		t.Fatalf("translator: %v", err)
	}

	bus := events.NewBus()
	store := kline.NewStore(500)
	reg := registry.New()
	sched := scheduler.New(store, bus)

	booter := &bootstrap.Bootstrapper{
		Source:     &syntheticHistory{bars: 120},
		Store:      store,
		Bus:        bus,
		Registry:   reg,
		Translator: translator,
		Limit:      200,
		MinBars:    50,
		Retries:    2,
	}
	runner := &strategy.Runner{
		Store:             store,
		Bus:               bus,
		Registry:          reg,
		Decider:           longOnIncremental{},
		Timeout:           5 * time.Second,
		DeepWindow:        100,
		IncrementalWindow: 20,
	}
	gate := risk.NewGate(risk.Config{
		CooldownBars:   2,
		MarginFraction: 0.5,
		Leverage:       10,
		MinOrderValue:  10,
	})
	gateway := &fillingGateway{}
	router := order.NewRouter(gateway, queries, bus, translator, 10)

	if err := reg.Register(pipelineSymbol, pipelineInterval, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	barClosed, unsub := bus.Subscribe(events.EventBarClosed, 16)
	defer unsub()

	// Backfill, then one deep pass at startup. The synthetic decider stays
	// quiet in deep mode.
	done, err := booter.Bootstrap(ctx, pipelineSymbol, pipelineInterval)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if done.Loaded != 120 || done.Degraded {
		t.Fatalf("bootstrap = %+v", done)
	}
	if sig := runner.Evaluate(ctx, pipelineSymbol, pipelineInterval, strategy.ModeDeep); sig != nil {
		t.Fatalf("deep pass emitted %+v, want none", sig)
	}
	sched.SeedBoundary(pipelineSymbol, pipelineInterval, done.LatestClosed)

	// The stream retransmits the newest bootstrapped bar, then closes the
	// next one.
	latest, err := store.LatestClosed(pipelineSymbol, pipelineInterval)
	if err != nil {
		t.Fatalf("latest closed: %v", err)
	}
	sched.HandleUpdate(latest)
	if got := sched.DuplicateFires(); got != 1 {
		t.Fatalf("retransmission not suppressed: duplicates = %d", got)
	}

	nextOpen := latest.OpenTime + stepMs
	sched.HandleUpdate(kline.Bar{
		Symbol:   pipelineSymbol,
		Interval: pipelineInterval,
		OpenTime: nextOpen,
		Open:     3000,
		High:     3020,
		Low:      2995,
		Close:    3010,
		Volume:   30,
		Closed:   true,
	})

	var bc scheduler.BarClosed
	select {
	case payload := <-barClosed:
		bc = payload.(scheduler.BarClosed)
	case <-time.After(time.Second):
		t.Fatal("no bar-closed event")
	}
	if bc.OpenTime != nextOpen {
		t.Fatalf("fired boundary %d, want %d", bc.OpenTime, nextOpen)
	}

	// Incremental pass on the close, exactly as the engine loop does it.
	gate.OnBarClosed(bc.Symbol)
	sig := runner.Evaluate(ctx, bc.Symbol, bc.Interval, strategy.ModeIncremental)
	if sig == nil {
		t.Fatal("incremental pass emitted no signal")
	}
	if sig.GeneratedAt != nextOpen {
		t.Fatalf("signal stamped %d, want boundary %d", sig.GeneratedAt, nextOpen)
	}

	dec := gate.Admit(*sig, bc.Bar.Close, risk.AccountState{
		Equity:    100000,
		Positions: map[string]risk.Position{},
	})
	if !dec.Allowed {
		t.Fatalf("gate rejected: %s %s", dec.Reason, dec.Detail)
	}

	record, err := router.Route(ctx, *sig, dec)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if record.Status != string(exchange.StatusFilled) {
		t.Fatalf("order status = %s, want FILLED", record.Status)
	}
	if len(gateway.submitted) != 1 {
		t.Fatalf("gateway calls = %d, want 1", len(gateway.submitted))
	}
	if got := gateway.submitted[0].Symbol; got != "ETH-USDT-SWAP" {
		t.Fatalf("venue symbol = %s, want ETH-USDT-SWAP", got)
	}
	gate.RecordTrade(risk.TradeResult{Symbol: sig.Symbol})

	// A replay of the same signal never reaches the venue twice.
	if _, err := router.Route(ctx, *sig, dec); err != order.ErrDuplicateSignal {
		t.Fatalf("replay err = %v, want ErrDuplicateSignal", err)
	}
	if len(gateway.submitted) != 1 {
		t.Fatalf("gateway calls after replay = %d, want 1", len(gateway.submitted))
	}

	// Persistence caught the whole flow.
	orders, err := queries.RecentOrders(ctx, 10)
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(orders) != 1 || orders[0].GeneratedAt != nextOpen {
		t.Fatalf("orders = %+v", orders)
	}
	trades, err := queries.RecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Price != 3010 {
		t.Fatalf("trades = %+v", trades)
	}
	positions, err := queries.GetPositions(ctx)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Symbol != pipelineSymbol {
		t.Fatalf("positions = %+v", positions)
	}
}
