// Package scheduler turns a live stream of bar updates into exactly-once
// bar-closed events per (symbol, interval, open time).
package scheduler

import (
	"log"
	"sync"
	"sync/atomic"

	"quant-core/internal/events"
	"quant-core/internal/kline"
)

// BarClosed is the payload published on the bus for each newly closed bar
// boundary.
type BarClosed struct {
	Symbol   string
	Interval string
	OpenTime int64
	Bar      kline.Bar
}

// Gap is published when a closed bar arrives more than one interval past the
// last fired boundary. The scheduler still fires once for the new bar; any
// backfill happens out of band.
type Gap struct {
	Symbol   string
	Interval string
	From     int64
	To       int64
	Missed   int64
}

// Scheduler tracks the last fired boundary per key. Incoming updates mutate
// the store; only a final update with a strictly newer open time fires.
type Scheduler struct {
	store *kline.Store
	bus   *events.Bus

	mu        sync.Mutex
	lastFired map[kline.Key]int64

	duplicates atomic.Int64
}

func New(store *kline.Store, bus *events.Bus) *Scheduler {
	return &Scheduler{
		store:     store,
		bus:       bus,
		lastFired: make(map[kline.Key]int64),
	}
}

// SeedBoundary records a boundary as already evaluated, so the stream's
// retransmission of a bar covered by the bootstrap pass does not fire again.
func (s *Scheduler) SeedBoundary(symbol, interval string, openTime int64) {
	key := kline.Key{Symbol: symbol, Interval: kline.NormalizeInterval(interval)}
	s.mu.Lock()
	if openTime > s.lastFired[key] {
		s.lastFired[key] = openTime
	}
	s.mu.Unlock()
}

// HandleUpdate ingests one stream update. Partial updates refresh the store
// in place and never fire. A final update fires exactly once per distinct
// open time, in strictly increasing order per key.
func (s *Scheduler) HandleUpdate(bar kline.Bar) {
	key := kline.Key{Symbol: bar.Symbol, Interval: kline.NormalizeInterval(bar.Interval)}

	s.store.Upsert(bar.Symbol, bar.Interval, bar)
	s.bus.Publish(events.EventKlineUpdate, bar)

	if !bar.Closed {
		return
	}

	s.mu.Lock()
	last := s.lastFired[key]
	if bar.OpenTime <= last {
		s.mu.Unlock()
		// Retransmission or out-of-order delivery of an already
		// fired boundary.
		s.duplicates.Add(1)
		return
	}
	s.lastFired[key] = bar.OpenTime
	s.mu.Unlock()

	if last > 0 {
		if step, err := kline.IntervalDuration(key.Interval); err == nil {
			if missed := (bar.OpenTime-last)/step.Milliseconds() - 1; missed > 0 {
				log.Printf("scheduler: %s gap of %d bar(s) between %d and %d; firing newest only", key, missed, last, bar.OpenTime)
				s.bus.Publish(events.EventGapDetected, Gap{
					Symbol:   bar.Symbol,
					Interval: key.Interval,
					From:     last,
					To:       bar.OpenTime,
					Missed:   missed,
				})
			}
		}
	}

	s.bus.Publish(events.EventBarClosed, BarClosed{
		Symbol:   bar.Symbol,
		Interval: key.Interval,
		OpenTime: bar.OpenTime,
		Bar:      bar,
	})
}

// DuplicateFires reports how many repeat fire attempts have been suppressed.
func (s *Scheduler) DuplicateFires() int64 {
	return s.duplicates.Load()
}
