package kline

import (
	"errors"
	"log"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned when a series does not exist or has no closed bars.
	ErrNotFound = errors.New("kline: series not found")
	// ErrInsufficientHistory is returned by Window when the caller required an
	// exact count and fewer bars are available.
	ErrInsufficientHistory = errors.New("kline: insufficient history")
)

// WindowOptions controls how Window slices a series.
type WindowOptions struct {
	// Exact makes Window fail with ErrInsufficientHistory when fewer than n
	// bars are available instead of returning a shorter slice.
	Exact bool
	// IncludeOpen includes the in-progress bar (if any) at the end of the
	// window. By default only closed bars are returned.
	IncludeOpen bool
}

// Store holds one ordered, duplicate-free bar series per (symbol, interval).
// Each series is guarded independently; there is exactly one writer per key
// (the stream handler) and any number of readers.
type Store struct {
	mu      sync.RWMutex
	series  map[Key]*series
	maxBars int
}

type series struct {
	mu   sync.RWMutex
	bars []Bar
}

// NewStore creates a store. maxBars bounds each series length; zero means
// unbounded (no retention trim).
func NewStore(maxBars int) *Store {
	return &Store{
		series:  make(map[Key]*series),
		maxBars: maxBars,
	}
}

func (s *Store) get(key Key, create bool) *series {
	s.mu.RLock()
	sr := s.series[key]
	s.mu.RUnlock()
	if sr != nil || !create {
		return sr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr = s.series[key]; sr == nil {
		sr = &series{}
		s.series[key] = sr
	}
	return sr
}

// Upsert inserts or replaces the bar with the same open time. A stored bar
// that is already closed is never overwritten; such an attempt is a warning
// no-op. Inserting a newer bar while the previous latest is still open marks
// the stale bar closed so only the last entry can ever be open.
func (s *Store) Upsert(symbol, interval string, bar Bar) {
	key := Key{Symbol: symbol, Interval: NormalizeInterval(interval)}
	sr := s.get(key, true)

	sr.mu.Lock()
	defer sr.mu.Unlock()

	idx := sort.Search(len(sr.bars), func(i int) bool {
		return sr.bars[i].OpenTime >= bar.OpenTime
	})

	if idx < len(sr.bars) && sr.bars[idx].OpenTime == bar.OpenTime {
		if sr.bars[idx].Closed {
			log.Printf("kline: %s ignoring update for already-closed bar open_time=%d", key, bar.OpenTime)
			return
		}
		sr.bars[idx] = bar
		return
	}

	// A newer bar supersedes any still-open predecessor.
	if idx == len(sr.bars) && len(sr.bars) > 0 {
		if last := &sr.bars[len(sr.bars)-1]; !last.Closed {
			last.Closed = true
		}
	}

	sr.bars = append(sr.bars, Bar{})
	copy(sr.bars[idx+1:], sr.bars[idx:])
	sr.bars[idx] = bar

	if s.maxBars > 0 && len(sr.bars) > s.maxBars {
		sr.bars = append(sr.bars[:0], sr.bars[len(sr.bars)-s.maxBars:]...)
	}
}

// BulkLoad merges a historical batch into the series, deduplicating by open
// time. Loading the same batch twice leaves the series unchanged. Bars loaded
// from history are treated as closed.
func (s *Store) BulkLoad(symbol, interval string, bars []Bar) {
	for _, b := range bars {
		b.Symbol = symbol
		b.Interval = NormalizeInterval(interval)
		b.Closed = true
		s.Upsert(symbol, interval, b)
	}
}

// Window returns the most recent n bars for the key. See WindowOptions for
// the exact-count and in-progress-bar policies. The returned slice is a copy.
func (s *Store) Window(symbol, interval string, n int, opts WindowOptions) ([]Bar, error) {
	key := Key{Symbol: symbol, Interval: NormalizeInterval(interval)}
	sr := s.get(key, false)
	if sr == nil {
		if opts.Exact {
			return nil, ErrInsufficientHistory
		}
		return nil, ErrNotFound
	}

	sr.mu.RLock()
	defer sr.mu.RUnlock()

	bars := sr.bars
	if !opts.IncludeOpen && len(bars) > 0 && !bars[len(bars)-1].Closed {
		bars = bars[:len(bars)-1]
	}

	if len(bars) < n {
		if opts.Exact {
			return nil, ErrInsufficientHistory
		}
		n = len(bars)
	}

	out := make([]Bar, n)
	copy(out, bars[len(bars)-n:])
	return out, nil
}

// LatestClosed returns the most recently closed bar for the key.
func (s *Store) LatestClosed(symbol, interval string) (Bar, error) {
	key := Key{Symbol: symbol, Interval: NormalizeInterval(interval)}
	sr := s.get(key, false)
	if sr == nil {
		return Bar{}, ErrNotFound
	}

	sr.mu.RLock()
	defer sr.mu.RUnlock()

	for i := len(sr.bars) - 1; i >= 0; i-- {
		if sr.bars[i].Closed {
			return sr.bars[i], nil
		}
	}
	return Bar{}, ErrNotFound
}

// Len reports the number of bars currently held for the key.
func (s *Store) Len(symbol, interval string) int {
	sr := s.get(Key{Symbol: symbol, Interval: NormalizeInterval(interval)}, false)
	if sr == nil {
		return 0
	}
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return len(sr.bars)
}
