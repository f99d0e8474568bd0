// Package exchange abstracts the order-execution venue.
package exchange

import "context"

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType supported by the router.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Status of a submitted order.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusFilled   Status = "FILLED"
	StatusRejected Status = "REJECTED"
)

// OrderRequest is a venue order with optional protective prices.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Type       OrderType
	Qty        float64
	Price      float64 // limit orders only
	StopLoss   float64
	TakeProfit float64
	Leverage   float64
	ClientID   string // idempotency key passed through to the venue
}

// OrderResult is the venue's acknowledgement.
type OrderResult struct {
	ExchangeOrderID string
	Status          Status
	FillPrice       float64
}

// Position is an open position as reported by the venue.
type Position struct {
	Symbol     string
	Side       Side
	Quantity   float64
	EntryPrice float64
	MarkPrice  float64
}

// Gateway abstracts a trading venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetPositions(ctx context.Context, symbol string) ([]Position, error)
}
