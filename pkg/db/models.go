package db

import "time"

// Order is a routed order as persisted.
type Order struct {
	ID              string    `json:"id"`
	SignalID        string    `json:"signal_id"`
	Symbol          string    `json:"symbol"`
	Side            string    `json:"side"`
	Type            string    `json:"type"`
	Price           float64   `json:"price"`
	Qty             float64   `json:"qty"`
	StopLoss        float64   `json:"stop_loss"`
	TakeProfit      float64   `json:"take_profit"`
	Status          string    `json:"status"`
	ExchangeOrderID string    `json:"exchange_order_id"`
	GeneratedAt     int64     `json:"generated_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Trade is a recorded fill.
type Trade struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Qty       float64   `json:"qty"`
	Fee       float64   `json:"fee"`
	PnL       float64   `json:"pnl"`
	CreatedAt time.Time `json:"created_at"`
}

// Position is the net position per symbol.
type Position struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Qty       float64   `json:"qty"`
	AvgPrice  float64   `json:"avg_price"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignalEvent is an audit-trail record of an emitted signal.
type SignalEvent struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Direction   string    `json:"direction"`
	Confidence  float64   `json:"confidence"`
	Mode        string    `json:"mode"`
	Reason      string    `json:"reason"`
	Degraded    bool      `json:"degraded"`
	GeneratedAt int64     `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// RiskMetrics is the daily risk counters row.
type RiskMetrics struct {
	Date        string  `json:"date"`
	DailyPnL    float64 `json:"daily_pnl"`
	DailyTrades int     `json:"daily_trades"`
	DailyWins   int     `json:"daily_wins"`
	DailyLosses float64 `json:"daily_losses"`
}
