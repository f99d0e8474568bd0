package strategy

import (
	"context"
	"time"

	"quant-core/internal/indicators"
	"quant-core/internal/kline"
)

// Direction is the side a signal proposes.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionFlat  Direction = "FLAT"
)

// Mode selects the evaluation depth. The caller derives it: the bootstrapper
// passes ModeDeep once per symbol, the bar-close path passes ModeIncremental
// thereafter. It is never inferred from internal state.
type Mode string

const (
	ModeDeep        Mode = "DEEP"
	ModeIncremental Mode = "INCREMENTAL"
)

// Signal is one strategy decision. It is ephemeral: consumed immediately by
// the risk gate, not persisted as a first-class entity.
type Signal struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Direction     Direction `json:"direction"`
	Confidence    float64   `json:"confidence"`
	SuggestedSize float64   `json:"suggested_size"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	Reason        string    `json:"reason"`
	GeneratedAt   int64     `json:"generated_at"` // open time of the evaluated boundary, unix ms
	Mode          Mode      `json:"mode"`
	Degraded      bool      `json:"degraded"` // produced from insufficient history
}

// Actionable reports whether the signal proposes entering a position.
func (s *Signal) Actionable() bool {
	return s != nil && (s.Direction == DirectionLong || s.Direction == DirectionShort)
}

// Decider is the strategy decision collaborator: a local rule scorer or a
// remote AI endpoint. A nil signal with nil error means "no signal".
// Implementations must honor ctx cancellation; the runner enforces the
// timeout.
type Decider interface {
	Name() string
	Decide(ctx context.Context, window []kline.Bar, ind indicators.Snapshot, mode Mode) (*Signal, error)
}

// GeneratedAtTime converts the boundary stamp for logging.
func (s *Signal) GeneratedAtTime() time.Time {
	return time.UnixMilli(s.GeneratedAt).UTC()
}
