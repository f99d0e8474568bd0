package indicators

import "math"

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA calculates an exponential moving average over the whole slice.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// EMASeries returns the running EMA for each element, seeded with the first
// value.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the Relative Strength Index over the trailing period.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	gain := 0.0
	loss := 0.0
	for i := len(values) - period; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}

// MACD returns the MACD line, signal line and histogram for the standard
// 12/26/9 configuration unless overridden.
func MACD(values []float64, fast, slow, signal int) (macd, signalLine, hist float64) {
	if len(values) < slow+signal {
		return 0, 0, 0
	}
	fastSeries := EMASeries(values, fast)
	slowSeries := EMASeries(values, slow)
	diff := make([]float64, len(values))
	for i := range values {
		diff[i] = fastSeries[i] - slowSeries[i]
	}
	signalSeries := EMASeries(diff, signal)
	macd = diff[len(diff)-1]
	signalLine = signalSeries[len(signalSeries)-1]
	return macd, signalLine, macd - signalLine
}

// Bollinger returns the middle band, band width relative to the middle, and
// the z-score of the latest value.
func Bollinger(values []float64, period int, numStdDev float64) (middle, width, zscore float64) {
	if period <= 0 || len(values) < period {
		return 0, 0, 0
	}
	middle = SMA(values, period)
	variance := 0.0
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - middle
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))
	if middle != 0 {
		width = (2 * numStdDev * std) / middle
	}
	if std != 0 {
		zscore = (values[len(values)-1] - middle) / std
	}
	return middle, width, zscore
}

// StdDev computes the population standard deviation of the trailing period.
func StdDev(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	mean := SMA(values, period)
	variance := 0.0
	for i := len(values) - period; i < len(values); i++ {
		d := values[i] - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(period))
}
