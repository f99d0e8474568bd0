package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateOrder = errors.New("order already recorded for signal")
)

// Queries wraps the read/write statements used by the engine.
type Queries struct {
	db *sql.DB
}

func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// ----------------------------------------
// Order queries
// ----------------------------------------

// InsertOrder records a routed order. The unique (symbol, generated_at)
// index enforces idempotency at the persistence layer as well.
func (q *Queries) InsertOrder(ctx context.Context, o Order) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO orders (id, signal_id, symbol, side, type, price, qty,
		                    stop_loss, take_profit, status, exchange_order_id, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.SignalID, o.Symbol, o.Side, o.Type, o.Price, o.Qty,
		o.StopLoss, o.TakeProfit, o.Status, o.ExchangeOrderID, o.GeneratedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrderStatus moves an order to its terminal state.
func (q *Queries) UpdateOrderStatus(ctx context.Context, id, status, exchangeOrderID string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, exchange_order_id = ? WHERE id = ?
	`, status, exchangeOrderID, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentOrders returns the latest orders, newest first.
func (q *Queries) RecentOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, COALESCE(signal_id, ''), symbol, side, type, price, qty,
		       stop_loss, take_profit, status, COALESCE(exchange_order_id, ''),
		       generated_at, created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.SignalID, &o.Symbol, &o.Side, &o.Type, &o.Price,
			&o.Qty, &o.StopLoss, &o.TakeProfit, &o.Status, &o.ExchangeOrderID,
			&o.GeneratedAt, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// OrderBySignalKey looks up an order by its idempotency key.
func (q *Queries) OrderBySignalKey(ctx context.Context, symbol string, generatedAt int64) (Order, error) {
	var o Order
	err := q.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(signal_id, ''), symbol, side, type, price, qty,
		       stop_loss, take_profit, status, COALESCE(exchange_order_id, ''),
		       generated_at, created_at
		FROM orders
		WHERE symbol = ? AND generated_at = ?
	`, symbol, generatedAt).Scan(&o.ID, &o.SignalID, &o.Symbol, &o.Side, &o.Type,
		&o.Price, &o.Qty, &o.StopLoss, &o.TakeProfit, &o.Status,
		&o.ExchangeOrderID, &o.GeneratedAt, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

// ----------------------------------------
// Trade queries
// ----------------------------------------

func (q *Queries) InsertTrade(ctx context.Context, t Trade) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO trades (id, order_id, symbol, side, price, qty, fee, pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OrderID, t.Symbol, t.Side, t.Price, t.Qty, t.Fee, t.PnL)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (q *Queries) RecentTrades(ctx context.Context, limit int) ([]Trade, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, price, qty, fee, pnl, created_at
		FROM trades
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Side, &t.Price,
			&t.Qty, &t.Fee, &t.PnL, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ----------------------------------------
// Position queries
// ----------------------------------------

func (q *Queries) UpsertPosition(ctx context.Context, p Position) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO positions (symbol, side, qty, avg_price, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			side = excluded.side,
			qty = excluded.qty,
			avg_price = excluded.avg_price,
			updated_at = CURRENT_TIMESTAMP
	`, p.Symbol, p.Side, p.Qty, p.AvgPrice)
	return err
}

func (q *Queries) DeletePosition(ctx context.Context, symbol string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	return err
}

func (q *Queries) GetPositions(ctx context.Context) ([]Position, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT symbol, side, qty, avg_price, updated_at FROM positions
	`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Symbol, &p.Side, &p.Qty, &p.AvgPrice, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ----------------------------------------
// Signal audit trail
// ----------------------------------------

func (q *Queries) InsertSignalEvent(ctx context.Context, s SignalEvent) error {
	degraded := 0
	if s.Degraded {
		degraded = 1
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO signal_events (id, symbol, direction, confidence, mode, reason, degraded, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Symbol, s.Direction, s.Confidence, s.Mode, s.Reason, degraded, s.GeneratedAt)
	if err != nil {
		return fmt.Errorf("insert signal event: %w", err)
	}
	return nil
}

func (q *Queries) RecentSignalEvents(ctx context.Context, symbol string, limit int) ([]SignalEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, symbol, direction, confidence, mode, COALESCE(reason, ''), degraded, generated_at, created_at
		FROM signal_events
		WHERE (? = '' OR symbol = ?)
		ORDER BY generated_at DESC
		LIMIT ?
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query signal events: %w", err)
	}
	defer rows.Close()

	var events []SignalEvent
	for rows.Next() {
		var (
			s        SignalEvent
			degraded int
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Direction, &s.Confidence, &s.Mode,
			&s.Reason, &degraded, &s.GeneratedAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal event: %w", err)
		}
		s.Degraded = degraded != 0
		events = append(events, s)
	}
	return events, rows.Err()
}

// ----------------------------------------
// Risk metrics
// ----------------------------------------

// UpsertRiskMetrics accumulates daily counters keyed by date (YYYY-MM-DD).
func (q *Queries) UpsertRiskMetrics(ctx context.Context, m RiskMetrics) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO risk_metrics (date, daily_pnl, daily_trades, daily_wins, daily_losses)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			daily_pnl = excluded.daily_pnl,
			daily_trades = excluded.daily_trades,
			daily_wins = excluded.daily_wins,
			daily_losses = excluded.daily_losses
	`, m.Date, m.DailyPnL, m.DailyTrades, m.DailyWins, m.DailyLosses)
	return err
}

func (q *Queries) GetRiskMetrics(ctx context.Context, date string) (RiskMetrics, error) {
	var m RiskMetrics
	err := q.db.QueryRowContext(ctx, `
		SELECT date, daily_pnl, daily_trades, daily_wins, daily_losses
		FROM risk_metrics WHERE date = ?
	`, date).Scan(&m.Date, &m.DailyPnL, &m.DailyTrades, &m.DailyWins, &m.DailyLosses)
	if errors.Is(err, sql.ErrNoRows) {
		return RiskMetrics{}, ErrNotFound
	}
	if err != nil {
		return RiskMetrics{}, fmt.Errorf("query risk metrics: %w", err)
	}
	return m, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces SQLITE_CONSTRAINT_UNIQUE in the message
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
