// Package order routes admitted signals to the execution venue.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"quant-core/internal/events"
	"quant-core/internal/risk"
	"quant-core/internal/strategy"
	"quant-core/internal/symbols"
	"quant-core/pkg/db"
	"quant-core/pkg/exchange"
)

// ErrDuplicateSignal means an order was already routed for this signal key.
var ErrDuplicateSignal = errors.New("order already routed for signal")

type signalKey struct {
	Symbol      string
	GeneratedAt int64
}

// Router turns admitted signals into venue orders exactly once per
// (symbol, generated_at).
type Router struct {
	Gateway    exchange.Gateway
	Queries    *db.Queries
	Bus        *events.Bus
	Translator *symbols.Translator

	Leverage   float64
	RetryDelay time.Duration

	mu     sync.Mutex
	routed map[signalKey]string // key -> order ID
}

func NewRouter(gw exchange.Gateway, queries *db.Queries, bus *events.Bus, tr *symbols.Translator, leverage float64) *Router {
	return &Router{
		Gateway:    gw,
		Queries:    queries,
		Bus:        bus,
		Translator: tr,
		Leverage:   leverage,
		RetryDelay: 500 * time.Millisecond,
		routed:     make(map[signalKey]string),
	}
}

// Route submits the order implied by sig and the risk decision.
// It returns the persisted order record, or ErrDuplicateSignal if this
// signal key was already routed.
func (r *Router) Route(ctx context.Context, sig strategy.Signal, dec risk.Decision) (db.Order, error) {
	if !dec.Allowed {
		return db.Order{}, fmt.Errorf("route: decision not allowed (%s)", dec.Reason)
	}
	side := exchange.SideBuy
	switch sig.Direction {
	case strategy.DirectionLong:
		side = exchange.SideBuy
	case strategy.DirectionShort:
		side = exchange.SideSell
	default:
		return db.Order{}, fmt.Errorf("route: direction %q is not actionable", sig.Direction)
	}

	key := signalKey{Symbol: sig.Symbol, GeneratedAt: sig.GeneratedAt}
	orderID := uuid.NewString()

	// Atomic check-and-set: a concurrent Route for the same key loses here.
	r.mu.Lock()
	if existing, ok := r.routed[key]; ok {
		r.mu.Unlock()
		log.Printf("[ORDER] duplicate signal %s@%d ignored (order %s)", sig.Symbol, sig.GeneratedAt, existing)
		return db.Order{}, ErrDuplicateSignal
	}
	r.routed[key] = orderID
	r.mu.Unlock()

	execSymbol, err := r.Translator.Execution(sig.Symbol)
	if err != nil {
		r.forget(key)
		return db.Order{}, fmt.Errorf("route %s: %w", sig.Symbol, err)
	}

	qty := dec.AdjustedSize
	if qty <= 0 {
		qty = sig.SuggestedSize
	}

	record := db.Order{
		ID:          orderID,
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Side:        string(side),
		Type:        string(exchange.OrderTypeMarket),
		Qty:         qty,
		StopLoss:    dec.StopLoss,
		TakeProfit:  dec.TakeProfit,
		Status:      string(exchange.StatusNew),
		GeneratedAt: sig.GeneratedAt,
	}
	if r.Queries != nil {
		if err := r.Queries.InsertOrder(ctx, record); err != nil {
			r.forget(key)
			if errors.Is(err, db.ErrDuplicateOrder) {
				return db.Order{}, ErrDuplicateSignal
			}
			return db.Order{}, fmt.Errorf("persist order: %w", err)
		}
	}

	req := exchange.OrderRequest{
		Symbol:     execSymbol,
		Side:       side,
		Type:       exchange.OrderTypeMarket,
		Qty:        qty,
		StopLoss:   dec.StopLoss,
		TakeProfit: dec.TakeProfit,
		Leverage:   r.Leverage,
		ClientID:   orderID,
	}

	r.publish(events.EventOrderSubmitted, record)

	res, err := r.submit(ctx, req)
	if err != nil {
		record.Status = string(exchange.StatusRejected)
		r.updateStatus(ctx, &record, res.ExchangeOrderID)
		r.publish(events.EventOrderFailed, record)
		return record, fmt.Errorf("submit %s: %w", execSymbol, err)
	}

	record.Status = string(res.Status)
	record.Price = res.FillPrice
	record.ExchangeOrderID = res.ExchangeOrderID
	r.updateStatus(ctx, &record, res.ExchangeOrderID)

	if res.Status == exchange.StatusFilled {
		r.recordFill(ctx, record)
		r.publish(events.EventOrderFilled, record)
	}
	log.Printf("[ORDER] routed %s %s qty=%.6f status=%s venue_id=%s",
		record.Side, execSymbol, record.Qty, record.Status, record.ExchangeOrderID)
	return record, nil
}

// submit tries the gateway once, then a single retry after RetryDelay.
func (r *Router) submit(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	res, err := r.Gateway.SubmitOrder(ctx, req)
	if err == nil || ctx.Err() != nil {
		return res, err
	}
	log.Printf("[ORDER] submit failed, retrying once: %v", err)
	select {
	case <-time.After(r.RetryDelay):
	case <-ctx.Done():
		return exchange.OrderResult{}, ctx.Err()
	}
	return r.Gateway.SubmitOrder(ctx, req)
}

// Routed reports whether the signal key was already routed.
func (r *Router) Routed(symbol string, generatedAt int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.routed[signalKey{Symbol: symbol, GeneratedAt: generatedAt}]
	return ok
}

func (r *Router) forget(key signalKey) {
	r.mu.Lock()
	delete(r.routed, key)
	r.mu.Unlock()
}

func (r *Router) updateStatus(ctx context.Context, record *db.Order, exchangeID string) {
	if r.Queries == nil {
		return
	}
	if err := r.Queries.UpdateOrderStatus(ctx, record.ID, record.Status, exchangeID); err != nil {
		log.Printf("[ORDER] update status %s: %v", record.ID, err)
	}
}

func (r *Router) recordFill(ctx context.Context, record db.Order) {
	if r.Queries == nil {
		return
	}
	trade := db.Trade{
		ID:      uuid.NewString(),
		OrderID: record.ID,
		Symbol:  record.Symbol,
		Side:    record.Side,
		Price:   record.Price,
		Qty:     record.Qty,
	}
	if err := r.Queries.InsertTrade(ctx, trade); err != nil {
		log.Printf("[ORDER] record trade %s: %v", record.ID, err)
	}
	pos := db.Position{
		Symbol:   record.Symbol,
		Side:     record.Side,
		Qty:      record.Qty,
		AvgPrice: record.Price,
	}
	if err := r.Queries.UpsertPosition(ctx, pos); err != nil {
		log.Printf("[ORDER] upsert position %s: %v", record.Symbol, err)
	}
}

func (r *Router) publish(event events.Event, payload any) {
	if r.Bus != nil {
		r.Bus.Publish(event, payload)
	}
}
