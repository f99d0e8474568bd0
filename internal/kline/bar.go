package kline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bar is one OHLCV observation. OpenTime is the bar-open boundary in unix
// milliseconds and is the unique key within a series. A bar may be rewritten
// while still open; once Closed is true it is immutable.
type Bar struct {
	Symbol      string
	Interval    string
	OpenTime    int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	Closed      bool
}

// OpenAt returns the bar-open boundary as a time.Time.
func (b Bar) OpenAt() time.Time {
	return time.UnixMilli(b.OpenTime).UTC()
}

// Key identifies one series in the store.
type Key struct {
	Symbol   string
	Interval string
}

func (k Key) String() string {
	return k.Symbol + "/" + k.Interval
}

// IntervalDuration converts an exchange interval token ("15m", "1h", "1d")
// into a duration. Week/month intervals are not supported by the engine.
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval unit %q in %q", string(unit), interval)
	}
}

// NormalizeInterval lower-cases and trims an interval token so "15M " and
// "15m" address the same series.
func NormalizeInterval(interval string) string {
	return strings.ToLower(strings.TrimSpace(interval))
}
