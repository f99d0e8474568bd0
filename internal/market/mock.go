package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"quant-core/internal/kline"
	"quant-core/pkg/market/backpack"
)

// MockFeed generates synthetic klines for local development. It serves
// both history (for the bootstrapper) and a live stream (for the
// scheduler) from one consistent random walk per symbol.
type MockFeed struct {
	StartPrice float64
	Step       float64
	Tick       time.Duration // update cadence within a bar

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
}

func NewMockFeed() *MockFeed {
	return &MockFeed{
		StartPrice: 2500,
		Step:       2.5,
		Tick:       time.Second,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		prices:     make(map[string]float64),
	}
}

// Klines produces limit closed bars ending at the current interval
// boundary, encoded the way the REST API returns them.
func (m *MockFeed) Klines(ctx context.Context, symbol, interval string, limit int) ([]json.RawMessage, error) {
	dur, err := kline.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	step := dur.Milliseconds()
	end := time.Now().UnixMilli() / step * step
	start := end - int64(limit)*step

	m.mu.Lock()
	defer m.mu.Unlock()
	price := m.price(symbol)

	records := make([]json.RawMessage, 0, limit)
	for ts := start; ts < end; ts += step {
		open := price
		high, low := open, open
		for i := 0; i < 4; i++ {
			price = m.walk(price)
			if price > high {
				high = price
			}
			if price < low {
				low = price
			}
		}
		volume := 50 + m.rng.Float64()*100
		rec := fmt.Sprintf(`{"start":%d,"o":"%.4f","h":"%.4f","l":"%.4f","c":"%.4f","v":"%.4f"}`,
			ts, open, high, low, price, volume)
		records = append(records, json.RawMessage(rec))
	}
	m.prices[symbol] = price
	return records, nil
}

// Subscribe emits in-progress updates every Tick and a final update at
// each interval boundary.
func (m *MockFeed) Subscribe(ctx context.Context, symbol, interval string) (<-chan backpack.KlineUpdate, func(), error) {
	dur, err := kline.IntervalDuration(interval)
	if err != nil {
		return nil, nil, err
	}
	step := dur.Milliseconds()

	out := make(chan backpack.KlineUpdate, 64)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		defer close(out)
		ticker := time.NewTicker(m.Tick)
		defer ticker.Stop()

		m.mu.Lock()
		price := m.price(symbol)
		m.mu.Unlock()

		openTime := time.Now().UnixMilli() / step * step
		open, high, low := price, price, price
		volume := 0.0

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case now := <-ticker.C:
				m.mu.Lock()
				price = m.walk(price)
				m.prices[symbol] = price
				m.mu.Unlock()

				if price > high {
					high = price
				}
				if price < low {
					low = price
				}
				volume += m.rng.Float64() * 10

				boundary := now.UnixMilli() / step * step
				final := boundary > openTime
				update := backpack.KlineUpdate{
					Symbol:   symbol,
					Interval: interval,
					OpenTime: openTime,
					Open:     open,
					High:     high,
					Low:      low,
					Close:    price,
					Volume:   volume,
					Final:    final,
				}
				select {
				case out <- update:
				default:
				}
				if final {
					openTime = boundary
					open, high, low = price, price, price
					volume = 0
				}
			}
		}
	}()
	return out, stop, nil
}

func (m *MockFeed) price(symbol string) float64 {
	if p, ok := m.prices[symbol]; ok {
		return p
	}
	p := m.StartPrice
	if p == 0 {
		p = 2500
	}
	m.prices[symbol] = p
	return p
}

func (m *MockFeed) walk(price float64) float64 {
	step := m.Step
	if step == 0 {
		step = 2.5
	}
	next := price + (m.rng.Float64()*2-1)*step
	if next <= 0 {
		next = price
	}
	return next
}
