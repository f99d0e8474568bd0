package strategy

import (
	"context"
	"fmt"

	"quant-core/internal/indicators"
	"quant-core/internal/kline"
)

// RuleDecider is the local scoring collaborator: a confluence of trend, RSI,
// MACD and Bollinger position. Deterministic given the same snapshot.
type RuleDecider struct {
	// BaseSize is the suggested position size for a full-confidence signal,
	// in base-asset units.
	BaseSize float64
	// ATRStopMult and ATRTargetMult place stop-loss/take-profit as ATR
	// multiples from the close.
	ATRStopMult   float64
	ATRTargetMult float64
	// MinConfidence suppresses signals scoring below it.
	MinConfidence float64
}

// NewRuleDecider applies the default tuning used by the dashboard presets.
func NewRuleDecider(baseSize float64) *RuleDecider {
	return &RuleDecider{
		BaseSize:      baseSize,
		ATRStopMult:   1.5,
		ATRTargetMult: 3.0,
		MinConfidence: 0.5,
	}
}

func (d *RuleDecider) Name() string { return "rule" }

// Decide scores long and short confluence and emits the stronger side when
// it clears the confidence floor.
func (d *RuleDecider) Decide(_ context.Context, window []kline.Bar, ind indicators.Snapshot, mode Mode) (*Signal, error) {
	if len(window) == 0 || ind.Close == 0 {
		return nil, nil
	}

	longScore, longWhy := d.scoreLong(ind)
	shortScore, shortWhy := d.scoreShort(ind)

	var (
		dir    Direction
		score  float64
		reason string
	)
	switch {
	case longScore >= shortScore && longScore >= d.MinConfidence:
		dir, score, reason = DirectionLong, longScore, longWhy
	case shortScore > longScore && shortScore >= d.MinConfidence:
		dir, score, reason = DirectionShort, shortScore, shortWhy
	default:
		return nil, nil
	}

	atr := ind.ATR
	if atr == 0 {
		// Thin history; fall back to a fixed fraction of price.
		atr = ind.Close * 0.01
	}

	sig := &Signal{
		Direction:     dir,
		Confidence:    score,
		SuggestedSize: d.BaseSize * score,
		Reason:        fmt.Sprintf("%s mode=%s", reason, mode),
	}
	if dir == DirectionLong {
		sig.StopLoss = ind.Close - d.ATRStopMult*atr
		sig.TakeProfit = ind.Close + d.ATRTargetMult*atr
	} else {
		sig.StopLoss = ind.Close + d.ATRStopMult*atr
		sig.TakeProfit = ind.Close - d.ATRTargetMult*atr
	}
	return sig, nil
}

func (d *RuleDecider) scoreLong(ind indicators.Snapshot) (float64, string) {
	score := 0.0
	reason := ""
	if ind.Trend == indicators.TrendUp {
		score += 0.35
		reason += "trend up;"
	}
	if ind.RSI > 0 && ind.RSI < 70 {
		score += 0.2
		if ind.RSI < 35 {
			score += 0.15
			reason += "rsi oversold;"
		}
	}
	if ind.MACDHist > 0 {
		score += 0.15
		reason += "macd+;"
	}
	if ind.ZScore < -1.5 {
		score += 0.15
		reason += "below lower band;"
	}
	if ind.VolumeMA > 0 && ind.LastVolume > 1.5*ind.VolumeMA {
		score += 0.1
		reason += "volume spike;"
	}
	return score, reason
}

func (d *RuleDecider) scoreShort(ind indicators.Snapshot) (float64, string) {
	score := 0.0
	reason := ""
	if ind.Trend == indicators.TrendDown {
		score += 0.35
		reason += "trend down;"
	}
	if ind.RSI > 30 {
		score += 0.2
		if ind.RSI > 65 {
			score += 0.15
			reason += "rsi overbought;"
		}
	}
	if ind.MACDHist < 0 {
		score += 0.15
		reason += "macd-;"
	}
	if ind.ZScore > 1.5 {
		score += 0.15
		reason += "above upper band;"
	}
	if ind.VolumeMA > 0 && ind.LastVolume > 1.5*ind.VolumeMA {
		score += 0.1
		reason += "volume spike;"
	}
	return score, reason
}
