package risk

import (
	"fmt"
	"log"
	"sync"
	"time"

	"quant-core/internal/strategy"
)

// Gate validates candidate signals against cooldown, margin and position
// limits before they reach order routing. Cooldown/position bookkeeping is
// mutated only by the gate itself.
type Gate struct {
	mu        sync.Mutex
	config    Config
	cooldowns map[string]*CooldownState
	metrics   Metrics
}

func NewGate(cfg Config) *Gate {
	return &Gate{
		config:    cfg,
		cooldowns: make(map[string]*CooldownState),
	}
}

// Config returns a copy of the active configuration.
func (g *Gate) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config
}

// Admit evaluates one signal at the given mark price against the account
// snapshot. On acceptance the gate records nothing beyond the decision; on
// rejection the typed reason is returned for logging/surfacing.
func (g *Gate) Admit(sig strategy.Signal, price float64, acct AccountState) Decision {
	g.mu.Lock()
	cfg := g.config
	cd := g.cooldowns[sig.Symbol]
	metrics := g.metrics
	g.mu.Unlock()

	if cd != nil && cd.BarsRemaining > 0 {
		return Decision{
			Allowed: false,
			Reason:  ReasonCooldown,
			Detail:  fmt.Sprintf("%d bar(s) remaining since close at %s", cd.BarsRemaining, cd.LastCloseTime.Format(time.RFC3339)),
		}
	}

	if cfg.MaxDailyTrades > 0 && metrics.DailyTrades >= cfg.MaxDailyTrades {
		return Decision{
			Allowed: false,
			Reason:  ReasonDailyTradeLimit,
			Detail:  fmt.Sprintf("daily trade limit reached: %d/%d", metrics.DailyTrades, cfg.MaxDailyTrades),
		}
	}
	if cfg.MaxDailyLoss > 0 && metrics.DailyLosses >= cfg.MaxDailyLoss {
		return Decision{
			Allowed: false,
			Reason:  ReasonDailyLossLimit,
			Detail:  fmt.Sprintf("daily loss limit exceeded: %.2f/%.2f", metrics.DailyLosses, cfg.MaxDailyLoss),
		}
	}

	if !cfg.AllowHedging {
		if pos, open := acct.Positions[sig.Symbol]; open && pos.Quantity > 0 {
			if (pos.Direction == strategy.DirectionLong && sig.Direction == strategy.DirectionShort) ||
				(pos.Direction == strategy.DirectionShort && sig.Direction == strategy.DirectionLong) {
				return Decision{
					Allowed: false,
					Reason:  ReasonConflictingPosition,
					Detail:  fmt.Sprintf("open %s position of %.4f opposes %s signal", pos.Direction, pos.Quantity, sig.Direction),
				}
			}
		}
	}

	notional := sig.SuggestedSize * price
	if cfg.MinOrderValue > 0 && notional < cfg.MinOrderValue {
		return Decision{
			Allowed: false,
			Reason:  ReasonOrderSize,
			Detail:  fmt.Sprintf("order value %.2f below minimum %.2f", notional, cfg.MinOrderValue),
		}
	}
	if cfg.MaxOrderValue > 0 && notional > cfg.MaxOrderValue {
		return Decision{
			Allowed: false,
			Reason:  ReasonOrderSize,
			Detail:  fmt.Sprintf("order value %.2f above maximum %.2f", notional, cfg.MaxOrderValue),
		}
	}

	leverage := cfg.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	implied := notional / leverage
	budget := acct.Equity * cfg.MarginFraction
	if budget > 0 && acct.MarginUsed+implied > budget {
		return Decision{
			Allowed: false,
			Reason:  ReasonMarginExceeded,
			Detail:  fmt.Sprintf("margin %.2f + %.2f exceeds budget %.2f (%.0f%% of equity %.2f)", acct.MarginUsed, implied, budget, cfg.MarginFraction*100, acct.Equity),
		}
	}

	dec := Decision{
		Allowed:      true,
		AdjustedSize: sig.SuggestedSize,
		StopLoss:     sig.StopLoss,
		TakeProfit:   sig.TakeProfit,
	}
	log.Printf("risk: admitted %s %s size=%.4f @ %.2f margin=%.2f/%.2f", sig.Symbol, sig.Direction, dec.AdjustedSize, price, acct.MarginUsed+implied, budget)
	return dec
}

// OnBarClosed decrements the symbol's cooldown by one. Cooldown is measured
// in closed bars regardless of evaluation frequency.
func (g *Gate) OnBarClosed(symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cd, ok := g.cooldowns[symbol]; ok && cd.BarsRemaining > 0 {
		cd.BarsRemaining--
	}
}

// OnPositionClosed starts the cooldown window for the symbol.
func (g *Gate) OnPositionClosed(symbol string, closedAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldowns[symbol] = &CooldownState{
		LastCloseTime: closedAt,
		BarsRemaining: g.config.CooldownBars,
	}
}

// CooldownRemaining reports the bars left before the symbol may re-enter.
func (g *Gate) CooldownRemaining(symbol string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cd, ok := g.cooldowns[symbol]; ok {
		return cd.BarsRemaining
	}
	return 0
}

// RecordTrade folds one realized result into the daily metrics. PnL is
// expected net of fees already.
func (g *Gate) RecordTrade(trade TradeResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.metrics.DailyTrades++
	g.metrics.DailyPnL += trade.PnL
	if trade.PnL > 0 {
		g.metrics.DailyWins++
	}
	if trade.PnL < 0 {
		g.metrics.DailyLosses += -trade.PnL
	}
	g.metrics.TotalPnL += trade.PnL
	if g.metrics.TotalPnL > g.metrics.MaxProfit {
		g.metrics.MaxProfit = g.metrics.TotalPnL
	}
	if dd := g.metrics.MaxProfit - g.metrics.TotalPnL; dd > g.metrics.MaxDrawdown {
		g.metrics.MaxDrawdown = dd
	}
}

// ResetDailyMetrics zeroes the daily counters at day rollover.
func (g *Gate) ResetDailyMetrics() {
	g.mu.Lock()
	defer g.mu.Unlock()
	log.Printf("risk: daily metrics reset. prev: pnl=%.2f trades=%d losses=%.2f",
		g.metrics.DailyPnL, g.metrics.DailyTrades, g.metrics.DailyLosses)
	g.metrics.DailyPnL = 0
	g.metrics.DailyTrades = 0
	g.metrics.DailyWins = 0
	g.metrics.DailyLosses = 0
}

// Metrics returns a snapshot of current metrics.
func (g *Gate) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics
}
