package indicators

import (
	"math"

	"quant-core/internal/kline"
)

// Trend classifies the broad direction of the window.
type Trend string

const (
	TrendUp       Trend = "UP"
	TrendDown     Trend = "DOWN"
	TrendSideways Trend = "SIDEWAYS"
)

// Snapshot is the deterministic indicator set computed from one bar window.
// The same window content always yields the same snapshot.
type Snapshot struct {
	Close      float64 `json:"close"`
	MA5        float64 `json:"ma5"`
	MA20       float64 `json:"ma20"`
	MA50       float64 `json:"ma50"`
	EMA12      float64 `json:"ema12"`
	EMA26      float64 `json:"ema26"`
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	BollMiddle float64 `json:"boll_middle"`
	BollWidth  float64 `json:"boll_width"`
	ZScore     float64 `json:"zscore"`
	ATR        float64 `json:"atr"`
	KDJK       float64 `json:"kdj_k"`
	KDJD       float64 `json:"kdj_d"`
	KDJJ       float64 `json:"kdj_j"`
	OBV        float64 `json:"obv"`
	VolumeMA   float64 `json:"volume_ma"`
	LastVolume float64 `json:"last_volume"`
	Trend      Trend   `json:"trend"`
}

// Compute derives the full indicator snapshot from a window of bars ordered
// by open time.
func Compute(bars []kline.Bar) Snapshot {
	if len(bars) == 0 {
		return Snapshot{Trend: TrendSideways}
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	s := Snapshot{
		Close:      closes[len(closes)-1],
		MA5:        SMA(closes, 5),
		MA20:       SMA(closes, 20),
		MA50:       SMA(closes, 50),
		EMA12:      EMA(closes, 12),
		EMA26:      EMA(closes, 26),
		RSI:        RSI(closes, 14),
		ATR:        atr(bars, 14),
		OBV:        obv(bars),
		VolumeMA:   SMA(volumes, 20),
		LastVolume: volumes[len(volumes)-1],
	}
	s.MACD, s.MACDSignal, s.MACDHist = MACD(closes, 12, 26, 9)
	s.BollMiddle, s.BollWidth, s.ZScore = Bollinger(closes, 20, 2)
	s.KDJK, s.KDJD, s.KDJJ = kdj(bars, 9)
	s.Trend = classifyTrend(s)
	return s
}

// classifyTrend uses MA ordering plus MACD histogram sign. A window too short
// for the slow MA reads as sideways.
func classifyTrend(s Snapshot) Trend {
	if s.MA20 == 0 || s.MA50 == 0 {
		return TrendSideways
	}
	switch {
	case s.Close > s.MA20 && s.MA20 > s.MA50 && s.MACDHist > 0:
		return TrendUp
	case s.Close < s.MA20 && s.MA20 < s.MA50 && s.MACDHist < 0:
		return TrendDown
	default:
		return TrendSideways
	}
}

func atr(bars []kline.Bar, period int) float64 {
	if len(bars) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		tr := bars[i].High - bars[i].Low
		prevClose := bars[i-1].Close
		tr = math.Max(tr, math.Abs(bars[i].High-prevClose))
		tr = math.Max(tr, math.Abs(bars[i].Low-prevClose))
		sum += tr
	}
	return sum / float64(period)
}

// obv accumulates on-balance volume over the full window.
func obv(bars []kline.Bar) float64 {
	total := 0.0
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			total += bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			total -= bars[i].Volume
		}
	}
	return total
}

// kdj computes the stochastic K/D/J values using simple smoothing.
func kdj(bars []kline.Bar, period int) (k, d, j float64) {
	if len(bars) < period {
		return 50, 50, 50
	}
	k, d = 50, 50
	for i := period - 1; i < len(bars); i++ {
		lowest := bars[i-period+1].Low
		highest := bars[i-period+1].High
		for _, b := range bars[i-period+2 : i+1] {
			lowest = math.Min(lowest, b.Low)
			highest = math.Max(highest, b.High)
		}
		rsv := 50.0
		if highest != lowest {
			rsv = (bars[i].Close - lowest) / (highest - lowest) * 100
		}
		k = (2*k + rsv) / 3
		d = (2*d + k) / 3
	}
	return k, d, 3*k - 2*d
}
