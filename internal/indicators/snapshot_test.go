package indicators

import (
	"testing"

	"quant-core/internal/kline"
)

func trendBars(n int, start, step float64) []kline.Bar {
	bars := make([]kline.Bar, n)
	price := start
	for i := range bars {
		bars[i] = kline.Bar{
			Symbol:   "ETH_USDC_PERP",
			Interval: "15m",
			OpenTime: int64(i) * 900000,
			Open:     price,
			High:     price + step + 1,
			Low:      price - 1,
			Close:    price + step,
			Volume:   10 + float64(i%5),
			Closed:   true,
		}
		price += step
	}
	return bars
}

func TestComputeEmptyWindow(t *testing.T) {
	s := Compute(nil)
	if s.Trend != TrendSideways {
		t.Errorf("trend = %s, want SIDEWAYS", s.Trend)
	}
	if s.Close != 0 {
		t.Errorf("close = %v, want 0", s.Close)
	}
}

func TestComputeDeterministic(t *testing.T) {
	bars := trendBars(100, 2000, 5)
	a := Compute(bars)
	b := Compute(bars)
	if a != b {
		t.Fatalf("same window produced different snapshots:\n%+v\n%+v", a, b)
	}
}

func TestComputeUptrend(t *testing.T) {
	s := Compute(trendBars(100, 2000, 5))
	if s.Trend != TrendUp {
		t.Errorf("trend = %s, want UP", s.Trend)
	}
	if s.Close <= s.MA20 || s.MA20 <= s.MA50 {
		t.Errorf("MA ordering close=%v ma20=%v ma50=%v", s.Close, s.MA20, s.MA50)
	}
	if s.RSI != 100 {
		t.Errorf("monotonic rise RSI = %v, want 100", s.RSI)
	}
	if s.MACDHist <= 0 {
		t.Errorf("macd hist = %v, want positive", s.MACDHist)
	}
	if s.ATR <= 0 {
		t.Errorf("atr = %v, want positive", s.ATR)
	}
	if s.KDJK <= 50 {
		t.Errorf("kdj k = %v, want above 50 in uptrend", s.KDJK)
	}
	if s.OBV <= 0 {
		t.Errorf("obv = %v, want positive when every close rises", s.OBV)
	}
}

func TestComputeDowntrend(t *testing.T) {
	s := Compute(trendBars(100, 3000, -5))
	if s.Trend != TrendDown {
		t.Errorf("trend = %s, want DOWN", s.Trend)
	}
	if s.MACDHist >= 0 {
		t.Errorf("macd hist = %v, want negative", s.MACDHist)
	}
	if s.OBV >= 0 {
		t.Errorf("obv = %v, want negative when every close falls", s.OBV)
	}
}

func TestComputeShortWindowIsSideways(t *testing.T) {
	// Too few bars for MA50: trend cannot be classified.
	s := Compute(trendBars(30, 2000, 5))
	if s.Trend != TrendSideways {
		t.Errorf("trend = %s, want SIDEWAYS for short window", s.Trend)
	}
	if s.MA50 != 0 {
		t.Errorf("ma50 = %v, want 0", s.MA50)
	}
	if s.MA20 == 0 || s.MA5 == 0 {
		t.Errorf("shorter MAs should still compute: ma5=%v ma20=%v", s.MA5, s.MA20)
	}
}

func TestComputeVolumeFields(t *testing.T) {
	bars := trendBars(60, 2000, 5)
	s := Compute(bars)
	if s.LastVolume != bars[len(bars)-1].Volume {
		t.Errorf("last volume = %v, want %v", s.LastVolume, bars[len(bars)-1].Volume)
	}
	if s.VolumeMA <= 0 {
		t.Errorf("volume ma = %v, want positive", s.VolumeMA)
	}
}
