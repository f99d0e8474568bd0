// Package engine orchestrates the per-symbol monitor lifecycle: bootstrap,
// stream, bar-close evaluation, risk admission, and routing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quant-core/internal/bootstrap"
	"quant-core/internal/events"
	"quant-core/internal/indicators"
	"quant-core/internal/kline"
	"quant-core/internal/market"
	"quant-core/internal/order"
	"quant-core/internal/registry"
	"quant-core/internal/risk"
	"quant-core/internal/scheduler"
	"quant-core/internal/snapshot"
	"quant-core/internal/strategy"
	"quant-core/internal/symbols"
	"quant-core/pkg/cache"
	"quant-core/pkg/db"
	"quant-core/pkg/exchange"
)

// Engine owns the monitors and the bar-close pipeline.
type Engine struct {
	Store        *kline.Store
	Bus          *events.Bus
	Registry     *registry.Registry
	Bootstrapper *bootstrap.Bootstrapper
	Scheduler    *scheduler.Scheduler
	Runner       *strategy.Runner
	Gate         *risk.Gate
	Router       *order.Router
	Feed         market.Feed
	Translator   *symbols.Translator
	Quotes       *cache.ShardedQuoteCache
	Snapshots    *snapshot.Publisher
	Queries      *db.Queries
	Gateway      exchange.Gateway

	Equity float64 // account equity used for margin admission

	laneMu sync.Mutex
	lanes  map[kline.Key]chan scheduler.BarClosed
}

// Run consumes bar-close events until ctx is cancelled. Each (symbol,
// interval) key gets its own evaluation lane: boundaries within a key are
// processed in order, while a slow decision on one symbol never blocks
// another symbol's evaluations.
func (e *Engine) Run(ctx context.Context) {
	closes, unsubCloses := e.Bus.Subscribe(events.EventBarClosed, 256)
	defer unsubCloses()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-closes:
			if !ok {
				return
			}
			bc, ok := msg.(scheduler.BarClosed)
			if !ok {
				continue
			}
			e.dispatch(ctx, bc)
		}
	}
}

// dispatch routes one closed bar to its key's lane, starting the lane on
// first use. A full lane means evaluations are running far behind the
// stream; the boundary is abandoned like a timed-out one.
func (e *Engine) dispatch(ctx context.Context, bc scheduler.BarClosed) {
	key := kline.Key{Symbol: bc.Symbol, Interval: bc.Interval}

	e.laneMu.Lock()
	if e.lanes == nil {
		e.lanes = make(map[kline.Key]chan scheduler.BarClosed)
	}
	lane, ok := e.lanes[key]
	if !ok {
		lane = make(chan scheduler.BarClosed, 16)
		e.lanes[key] = lane
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case next := <-lane:
					e.onBarClosed(ctx, next)
				}
			}
		}()
	}
	e.laneMu.Unlock()

	select {
	case lane <- bc:
	default:
		log.Printf("[ENGINE] %s %s evaluation backlog full, dropping boundary %d", bc.Symbol, bc.Interval, bc.OpenTime)
	}
}

// StartMonitor bootstraps a symbol and begins streaming it.
func (e *Engine) StartMonitor(ctx context.Context, symbol, interval string) error {
	if !e.Translator.Known(symbol) {
		return &symbols.ErrUnmapped{Symbol: symbol}
	}
	monCtx, cancel := context.WithCancel(context.Background())
	if err := e.Registry.Register(symbol, interval, cancel); err != nil {
		cancel()
		return err
	}

	go e.monitorLoop(monCtx, symbol, interval)
	return nil
}

// StopMonitor cancels a monitor's stream and removes it.
func (e *Engine) StopMonitor(symbol, interval string) error {
	if err := e.Registry.Deregister(symbol, interval); err != nil {
		return err
	}
	e.Bus.Publish(events.EventMonitorStopped, registry.Monitor{
		Symbol: symbol, Interval: interval, Status: registry.StatusStopped,
	})
	log.Printf("[ENGINE] monitor stopped %s %s", symbol, interval)
	return nil
}

func (e *Engine) monitorLoop(ctx context.Context, symbol, interval string) {
	done, err := e.Bootstrapper.Bootstrap(ctx, symbol, interval)
	if err != nil {
		log.Printf("[ENGINE] bootstrap %s %s failed: %v", symbol, interval, err)
		_ = e.Registry.Deregister(symbol, interval)
		return
	}

	// First analysis runs immediately on the preloaded history.
	if sig := e.Runner.Evaluate(ctx, symbol, interval, strategy.ModeDeep); sig != nil {
		e.handleSignal(ctx, *sig, interval)
	}
	// The stream will retransmit the bar the bootstrap already covered;
	// seed the boundary so it cannot fire twice.
	if done.LatestClosed > 0 {
		e.Scheduler.SeedBoundary(symbol, interval, done.LatestClosed)
	}
	e.Registry.Activate(symbol, interval)

	dataSymbol, err := e.Translator.DataSource(symbol)
	if err != nil {
		log.Printf("[ENGINE] %s: %v", symbol, err)
		_ = e.Registry.Deregister(symbol, interval)
		return
	}

	updates, stop, err := e.Feed.Subscribe(ctx, dataSymbol, interval)
	if err != nil {
		log.Printf("[ENGINE] subscribe %s %s: %v", dataSymbol, interval, err)
		_ = e.Registry.Deregister(symbol, interval)
		return
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				log.Printf("[ENGINE] stream %s %s closed permanently", symbol, interval)
				e.Registry.MarkDegraded(symbol, interval)
				e.Bus.Publish(events.EventSymbolDegraded, registry.Monitor{
					Symbol: symbol, Interval: interval, Degraded: true,
				})
				return
			}
			bar := kline.Bar{
				Symbol:      symbol,
				Interval:    interval,
				OpenTime:    u.OpenTime,
				Open:        u.Open,
				High:        u.High,
				Low:         u.Low,
				Close:       u.Close,
				Volume:      u.Volume,
				QuoteVolume: u.QuoteVolume,
				Closed:      u.Final,
			}
			e.Quotes.Set(symbol, cache.Quote{
				Price:       u.Close,
				Volume:      u.Volume,
				BarOpenTime: u.OpenTime,
			})
			e.Scheduler.HandleUpdate(bar)
		}
	}
}

// onBarClosed runs the incremental pipeline for one closed bar.
func (e *Engine) onBarClosed(ctx context.Context, bc scheduler.BarClosed) {
	e.Gate.OnBarClosed(bc.Symbol)

	if e.Snapshots != nil {
		if window, err := e.Store.Window(bc.Symbol, bc.Interval, e.Runner.IncrementalWindow, kline.WindowOptions{}); err == nil && len(window) > 0 {
			snap := indicators.Compute(window)
			if err := e.Snapshots.PublishIndicators(ctx, bc.Symbol, bc.Interval, bc.OpenTime, snap); err != nil {
				log.Printf("[ENGINE] snapshot indicators: %v", err)
			}
		}
	}

	sig := e.Runner.Evaluate(ctx, bc.Symbol, bc.Interval, strategy.ModeIncremental)
	if sig == nil {
		return
	}
	e.handleSignal(ctx, *sig, bc.Interval)
}

func (e *Engine) handleSignal(ctx context.Context, sig strategy.Signal, interval string) {
	e.recordSignal(ctx, sig)
	if e.Snapshots != nil {
		if err := e.Snapshots.PublishSignal(ctx, sig); err != nil {
			log.Printf("[ENGINE] snapshot publish: %v", err)
		}
	}
	if !sig.Actionable() {
		return
	}

	price, ok := e.Quotes.Price(sig.Symbol)
	if !ok {
		if bar, err := e.Store.LatestClosed(sig.Symbol, interval); err == nil {
			price = bar.Close
		}
	}
	if price <= 0 {
		log.Printf("[ENGINE] no reference price for %s, dropping signal %s", sig.Symbol, sig.ID)
		return
	}

	acct := e.accountState(ctx)
	decision := e.Gate.Admit(sig, price, acct)
	if !decision.Allowed {
		log.Printf("[ENGINE] signal %s rejected: %s (%s)", sig.ID, decision.Reason, decision.Detail)
		e.Bus.Publish(events.EventSignalRejected, risk.Rejection{
			Signal:   sig,
			Decision: decision,
		})
		return
	}

	rec, err := e.Router.Route(ctx, sig, decision)
	if err != nil {
		if errors.Is(err, order.ErrDuplicateSignal) {
			return
		}
		log.Printf("[ENGINE] route signal %s: %v", sig.ID, err)
		return
	}
	e.Gate.RecordTrade(risk.TradeResult{Symbol: rec.Symbol})
}

func (e *Engine) recordSignal(ctx context.Context, sig strategy.Signal) {
	if e.Queries == nil {
		return
	}
	event := db.SignalEvent{
		ID:          sig.ID,
		Symbol:      sig.Symbol,
		Direction:   string(sig.Direction),
		Confidence:  sig.Confidence,
		Mode:        string(sig.Mode),
		Reason:      sig.Reason,
		Degraded:    sig.Degraded,
		GeneratedAt: sig.GeneratedAt,
	}
	if err := e.Queries.InsertSignalEvent(ctx, event); err != nil {
		log.Printf("[ENGINE] record signal %s: %v", sig.ID, err)
	}
}

// accountState asks the venue for open positions; in dry-run the gateway
// serves simulated ones.
func (e *Engine) accountState(ctx context.Context) risk.AccountState {
	acct := risk.AccountState{Equity: e.Equity}
	if e.Gateway == nil {
		return acct
	}
	posCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	positions, err := e.Gateway.GetPositions(posCtx, "")
	if err != nil {
		log.Printf("[ENGINE] get positions: %v", err)
		return acct
	}
	acct.Positions = make(map[string]risk.Position, len(positions))
	for _, p := range positions {
		logical := e.Translator.FromExecution(p.Symbol)
		direction := strategy.DirectionLong
		if p.Side == exchange.SideSell {
			direction = strategy.DirectionShort
		}
		acct.Positions[logical] = risk.Position{
			Symbol:     logical,
			Direction:  direction,
			Quantity:   p.Quantity,
			EntryPrice: p.EntryPrice,
		}
		if lev := e.Gate.Config().Leverage; lev > 0 {
			acct.MarginUsed += p.Quantity * p.EntryPrice / lev
		}
	}
	return acct
}

// String implements fmt.Stringer for startup logging.
func (e *Engine) String() string {
	return fmt.Sprintf("engine(monitors=%d)", len(e.Registry.List()))
}
