package backpack

import (
	"strconv"
	"strings"
	"time"
)

// secondsMillisBoundary mirrors the engine's timestamp-scale heuristic for
// stream payloads: values below it are seconds.
const secondsMillisBoundary = int64(1e11)

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

func toMillis(v any) int64 {
	switch t := v.(type) {
	case float64:
		return scaleMillis(int64(t))
	case int64:
		return scaleMillis(t)
	case int:
		return scaleMillis(int64(t))
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return scaleMillis(n)
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UnixMilli()
		}
		if ts, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return ts.UnixMilli()
		}
		return 0
	default:
		return 0
	}
}

func scaleMillis(ts int64) int64 {
	if ts < secondsMillisBoundary {
		return ts * 1000
	}
	return ts
}
