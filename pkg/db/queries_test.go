package db

import (
	"context"
	"errors"
	"testing"
)

func setupTestDB(t *testing.T) *Queries {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := Migrate(database.DB); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	return NewQueries(database.DB)
}

func TestOrderIdempotencyIndex(t *testing.T) {
	q := setupTestDB(t)
	ctx := context.Background()

	order := Order{
		ID:          "ord-1",
		SignalID:    "sig-1",
		Symbol:      "ETH_USDC_PERP",
		Side:        "BUY",
		Type:        "MARKET",
		Qty:         0.5,
		Status:      "NEW",
		GeneratedAt: 1706400000000,
	}
	if err := q.InsertOrder(ctx, order); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := order
	dup.ID = "ord-2"
	err := q.InsertOrder(ctx, dup)
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Errorf("expected ErrDuplicateOrder, got %v", err)
	}

	// A different generated_at is a different signal and must insert.
	next := order
	next.ID = "ord-3"
	next.GeneratedAt = 1706400900000
	if err := q.InsertOrder(ctx, next); err != nil {
		t.Errorf("insert with new generated_at: %v", err)
	}
}

func TestOrderBySignalKey(t *testing.T) {
	q := setupTestDB(t)
	ctx := context.Background()

	if _, err := q.OrderBySignalKey(ctx, "ETH_USDC_PERP", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	order := Order{
		ID: "ord-1", Symbol: "ETH_USDC_PERP", Side: "SELL", Type: "MARKET",
		Qty: 1, Status: "FILLED", GeneratedAt: 42,
	}
	if err := q.InsertOrder(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := q.OrderBySignalKey(ctx, "ETH_USDC_PERP", 42)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != "ord-1" || got.Side != "SELL" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	q := setupTestDB(t)
	ctx := context.Background()

	if err := q.UpdateOrderStatus(ctx, "missing", "FILLED", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	order := Order{ID: "ord-1", Symbol: "BTC_USDC_PERP", Side: "BUY", Type: "MARKET", Qty: 0.01, Status: "NEW", GeneratedAt: 7}
	if err := q.InsertOrder(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := q.UpdateOrderStatus(ctx, "ord-1", "FILLED", "ex-99"); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := q.OrderBySignalKey(ctx, "BTC_USDC_PERP", 7)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Status != "FILLED" || got.ExchangeOrderID != "ex-99" {
		t.Errorf("status not updated: %+v", got)
	}
}

func TestSignalEventRoundTrip(t *testing.T) {
	q := setupTestDB(t)
	ctx := context.Background()

	events := []SignalEvent{
		{ID: "s1", Symbol: "ETH_USDC_PERP", Direction: "LONG", Confidence: 0.7, Mode: "DEEP", GeneratedAt: 100},
		{ID: "s2", Symbol: "ETH_USDC_PERP", Direction: "FLAT", Mode: "INCREMENTAL", Degraded: true, GeneratedAt: 200},
		{ID: "s3", Symbol: "BTC_USDC_PERP", Direction: "SHORT", Confidence: 0.8, Mode: "INCREMENTAL", GeneratedAt: 300},
	}
	for _, e := range events {
		if err := q.InsertSignalEvent(ctx, e); err != nil {
			t.Fatalf("insert %s: %v", e.ID, err)
		}
	}

	got, err := q.RecentSignalEvents(ctx, "ETH_USDC_PERP", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "s2" || !got[0].Degraded {
		t.Errorf("expected newest degraded event first, got %+v", got[0])
	}

	all, err := q.RecentSignalEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events, got %d", len(all))
	}
}

func TestPositionUpsert(t *testing.T) {
	q := setupTestDB(t)
	ctx := context.Background()

	if err := q.UpsertPosition(ctx, Position{Symbol: "ETH_USDC_PERP", Side: "BUY", Qty: 1, AvgPrice: 2500}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := q.UpsertPosition(ctx, Position{Symbol: "ETH_USDC_PERP", Side: "BUY", Qty: 2, AvgPrice: 2550}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	positions, err := q.GetPositions(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(positions) != 1 || positions[0].Qty != 2 || positions[0].AvgPrice != 2550 {
		t.Errorf("unexpected positions: %+v", positions)
	}

	if err := q.DeletePosition(ctx, "ETH_USDC_PERP"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	positions, _ = q.GetPositions(ctx)
	if len(positions) != 0 {
		t.Errorf("expected empty positions, got %+v", positions)
	}
}

func TestRiskMetricsUpsert(t *testing.T) {
	q := setupTestDB(t)
	ctx := context.Background()

	if _, err := q.GetRiskMetrics(ctx, "2026-01-28"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	m := RiskMetrics{Date: "2026-01-28", DailyPnL: -120.5, DailyTrades: 4, DailyWins: 1, DailyLosses: 150}
	if err := q.UpsertRiskMetrics(ctx, m); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	m.DailyTrades = 5
	if err := q.UpsertRiskMetrics(ctx, m); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := q.GetRiskMetrics(ctx, "2026-01-28")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DailyTrades != 5 {
		t.Errorf("expected 5 trades, got %d", got.DailyTrades)
	}
}
