package risk

import (
	"time"

	"quant-core/internal/strategy"
)

// Reason classifies why a signal was rejected. Rejections are expected
// outcomes surfaced to logs/UI, not errors.
type Reason string

const (
	ReasonCooldown            Reason = "COOLDOWN_REJECTED"
	ReasonMarginExceeded      Reason = "MARGIN_EXCEEDED"
	ReasonConflictingPosition Reason = "CONFLICTING_POSITION"
	ReasonDailyTradeLimit     Reason = "DAILY_TRADE_LIMIT"
	ReasonDailyLossLimit      Reason = "DAILY_LOSS_LIMIT"
	ReasonOrderSize           Reason = "ORDER_SIZE_LIMIT"
)

// Decision is the typed admission result. Never a bare boolean: a rejection
// always carries its reason so the caller can log and surface it.
type Decision struct {
	Allowed      bool    `json:"allowed"`
	Reason       Reason  `json:"reason,omitempty"`
	Detail       string  `json:"detail,omitempty"`
	AdjustedSize float64 `json:"adjusted_size,omitempty"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	TakeProfit   float64 `json:"take_profit,omitempty"`
}

// Config bounds what the gate admits.
type Config struct {
	CooldownBars   int     // closed bars after a position close before re-entry
	MarginFraction float64 // max fraction of equity usable as margin
	Leverage       float64
	MaxDailyTrades int     // zero disables
	MaxDailyLoss   float64 // zero disables
	MinOrderValue  float64 // notional floor, zero disables
	MaxOrderValue  float64 // notional cap, zero disables
	AllowHedging   bool    // when false, opposing open positions reject
}

// DefaultConfig mirrors the dashboard's conservative preset.
func DefaultConfig() Config {
	return Config{
		CooldownBars:   3,
		MarginFraction: 0.10,
		Leverage:       10,
		MaxDailyTrades: 20,
		MaxDailyLoss:   500,
		MinOrderValue:  10,
		AllowHedging:   false,
	}
}

// Position is the caller-supplied view of an open position.
type Position struct {
	Symbol     string
	Direction  strategy.Direction
	Quantity   float64
	EntryPrice float64
}

// AccountState is the caller-supplied account snapshot used for margin math.
type AccountState struct {
	Equity     float64
	MarginUsed float64
	Positions  map[string]Position
}

// CooldownState tracks the per-symbol lockout, measured in closed bars.
type CooldownState struct {
	LastCloseTime time.Time
	BarsRemaining int
}

// Metrics aggregates realized results for the day plus running drawdown.
type Metrics struct {
	DailyPnL    float64
	DailyTrades int
	DailyWins   int
	DailyLosses float64
	TotalPnL    float64
	MaxProfit   float64
	MaxDrawdown float64
}

// TradeResult is one realized trade, PnL net of fees.
type TradeResult struct {
	Symbol string
	PnL    float64
	Fee    float64
}

// Rejection pairs a signal with the decision that refused it. Published on
// the bus so the UI can show why nothing was traded.
type Rejection struct {
	Signal   strategy.Signal `json:"signal"`
	Decision Decision        `json:"decision"`
}
