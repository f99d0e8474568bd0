package kline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// secondsMillisBoundary disambiguates second vs millisecond unix timestamps.
// Values below the boundary are treated as seconds and scaled up; 1e11 ms is
// 1973 while 1e11 s is year 5138, so no real market timestamp is ambiguous.
const secondsMillisBoundary = int64(1e11)

// MalformedRecordError marks a single history/stream record that could not be
// parsed. The batch containing it continues; the raw payload is retained for
// logging.
type MalformedRecordError struct {
	Reason string
	Raw    string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed kline record: %s (raw=%s)", e.Reason, e.Raw)
}

func malformed(reason string, raw []byte) error {
	r := string(raw)
	if len(r) > 200 {
		r = r[:200] + "..."
	}
	return &MalformedRecordError{Reason: reason, Raw: r}
}

// ParseRecord resolves one raw history record into a canonical Bar. Venues
// return either a field-keyed object or a fixed-position array
// (time, open, high, low, close, volume[, quote volume]); the shape is
// detected here once so downstream code never sees the raw encoding.
func ParseRecord(raw json.RawMessage) (Bar, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return Bar{}, malformed("invalid object: "+err.Error(), raw)
		}
		return parseObjectRecord(fields, raw)
	case strings.HasPrefix(trimmed, "["):
		var values []any
		if err := json.Unmarshal(raw, &values); err != nil {
			return Bar{}, malformed("invalid array: "+err.Error(), raw)
		}
		return parseArrayRecord(values, raw)
	default:
		return Bar{}, malformed("neither object nor array", raw)
	}
}

func parseObjectRecord(fields map[string]any, raw []byte) (Bar, error) {
	ts, ok := firstField(fields, "start", "timestamp", "t", "time", "openTime")
	if !ok {
		return Bar{}, malformed("missing timestamp field", raw)
	}
	openTime, err := NormalizeTimestamp(ts)
	if err != nil {
		return Bar{}, malformed(err.Error(), raw)
	}

	b := Bar{OpenTime: openTime}
	if b.Open, err = numField(fields, "open", "o"); err != nil {
		return Bar{}, malformed(err.Error(), raw)
	}
	if b.High, err = numField(fields, "high", "h"); err != nil {
		return Bar{}, malformed(err.Error(), raw)
	}
	if b.Low, err = numField(fields, "low", "l"); err != nil {
		return Bar{}, malformed(err.Error(), raw)
	}
	if b.Close, err = numField(fields, "close", "c"); err != nil {
		return Bar{}, malformed(err.Error(), raw)
	}
	// Volume fields are optional in some venue responses.
	b.Volume, _ = numField(fields, "volume", "v")
	b.QuoteVolume, _ = numField(fields, "quoteVolume", "qv")

	if b.Open == 0 || b.Close == 0 {
		return Bar{}, malformed("zero open/close price", raw)
	}
	return b, nil
}

func parseArrayRecord(values []any, raw []byte) (Bar, error) {
	if len(values) < 6 {
		return Bar{}, malformed(fmt.Sprintf("array record has %d fields, want >= 6", len(values)), raw)
	}
	openTime, err := NormalizeTimestamp(values[0])
	if err != nil {
		return Bar{}, malformed(err.Error(), raw)
	}

	nums := make([]float64, 0, 6)
	for i := 1; i < len(values) && i < 7; i++ {
		f, err := toFloat(values[i])
		if err != nil {
			return Bar{}, malformed(fmt.Sprintf("field %d: %v", i, err), raw)
		}
		nums = append(nums, f)
	}

	b := Bar{
		OpenTime: openTime,
		Open:     nums[0],
		High:     nums[1],
		Low:      nums[2],
		Close:    nums[3],
		Volume:   nums[4],
	}
	if len(nums) > 5 {
		b.QuoteVolume = nums[5]
	}
	if b.Open == 0 || b.Close == 0 {
		return Bar{}, malformed("zero open/close price", raw)
	}
	return b, nil
}

// NormalizeTimestamp accepts integer seconds, integer milliseconds, numeric
// strings of either, or ISO-8601 strings, and returns unix milliseconds.
// Naive ISO strings are taken as UTC.
func NormalizeTimestamp(v any) (int64, error) {
	switch t := v.(type) {
	case float64:
		return scaleToMillis(int64(t)), nil
	case int64:
		return scaleToMillis(t), nil
	case int:
		return scaleToMillis(int64(t)), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("unparseable numeric timestamp %q", t.String())
		}
		return scaleToMillis(n), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, fmt.Errorf("empty timestamp")
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return scaleToMillis(n), nil
		}
		// time.Parse treats layouts without a zone as UTC, which matches
		// venue behavior for naive ISO strings.
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UnixMilli(), nil
			}
		}
		return 0, fmt.Errorf("unparseable timestamp %q", s)
	default:
		return 0, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func scaleToMillis(ts int64) int64 {
	if ts < secondsMillisBoundary {
		return ts * 1000
	}
	return ts
}

func firstField(fields map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func numField(fields map[string]any, keys ...string) (float64, error) {
	v, ok := firstField(fields, keys...)
	if !ok {
		return 0, fmt.Errorf("missing field %q", keys[0])
	}
	return toFloat(v)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case json.Number:
		return t.Float64()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, fmt.Errorf("empty numeric string")
		}
		return strconv.ParseFloat(s, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
