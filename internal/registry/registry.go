// Package registry tracks the set of symbols the engine is currently
// monitoring. It is an explicit object handed to the bootstrapper and the
// scheduler rather than ambient state, so the dashboard's start/stop commands
// have one owner.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"quant-core/internal/kline"
)

// Status is the lifecycle phase of one monitored key.
type Status string

const (
	StatusRegistered Status = "REGISTERED" // accepted, bootstrap not finished
	StatusActive     Status = "ACTIVE"     // live stream attached
	StatusStopped    Status = "STOPPED"
)

var (
	ErrAlreadyMonitored = errors.New("registry: symbol already monitored")
	ErrNotMonitored     = errors.New("registry: symbol not monitored")
)

// Monitor is the public snapshot of one monitored symbol/interval.
type Monitor struct {
	Symbol        string    `json:"symbol"`
	Interval      string    `json:"interval"`
	Status        Status    `json:"status"`
	Degraded      bool      `json:"degraded"` // running on insufficient history
	LastEvaluated int64     `json:"last_evaluated"`
	LastMode      string    `json:"last_mode"`
	StartedAt     time.Time `json:"started_at"`
}

type entry struct {
	monitor Monitor
	cancel  context.CancelFunc
}

// Registry is the mutable monitoring set. All mutation goes through it.
type Registry struct {
	mu      sync.RWMutex
	entries map[kline.Key]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[kline.Key]*entry)}
}

// Register adds a new key in REGISTERED state. The cancel function tears down
// the key's stream goroutine on Deregister.
func (r *Registry) Register(symbol, interval string, cancel context.CancelFunc) error {
	key := kline.Key{Symbol: symbol, Interval: kline.NormalizeInterval(interval)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok && e.monitor.Status != StatusStopped {
		return ErrAlreadyMonitored
	}
	r.entries[key] = &entry{
		monitor: Monitor{
			Symbol:    symbol,
			Interval:  key.Interval,
			Status:    StatusRegistered,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	return nil
}

// Activate transitions a key to ACTIVE once its live stream is attached.
func (r *Registry) Activate(symbol, interval string) {
	r.update(symbol, interval, func(m *Monitor) { m.Status = StatusActive })
}

// MarkDegraded flags a key as running on insufficient history. It keeps
// running; evaluations are surfaced with the flag.
func (r *Registry) MarkDegraded(symbol, interval string) {
	r.update(symbol, interval, func(m *Monitor) { m.Degraded = true })
}

// RecordEvaluation stores the boundary and mode of the latest strategy pass.
func (r *Registry) RecordEvaluation(symbol, interval string, openTime int64, mode string) {
	r.update(symbol, interval, func(m *Monitor) {
		m.LastEvaluated = openTime
		m.LastMode = mode
	})
}

// Deregister cancels the key's stream and marks it STOPPED.
func (r *Registry) Deregister(symbol, interval string) error {
	key := kline.Key{Symbol: symbol, Interval: kline.NormalizeInterval(interval)}
	r.mu.Lock()
	e, ok := r.entries[key]
	if ok {
		e.monitor.Status = StatusStopped
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotMonitored
	}
	if e.cancel != nil {
		e.cancel()
	}
	return nil
}

// Get returns the snapshot for one key.
func (r *Registry) Get(symbol, interval string) (Monitor, bool) {
	key := kline.Key{Symbol: symbol, Interval: kline.NormalizeInterval(interval)}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key]
	if !ok {
		return Monitor{}, false
	}
	return e.monitor, true
}

// List returns snapshots of all non-stopped keys.
func (r *Registry) List() []Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Monitor, 0, len(r.entries))
	for _, e := range r.entries {
		if e.monitor.Status == StatusStopped {
			continue
		}
		out = append(out, e.monitor)
	}
	return out
}

// Degraded reports whether the key is flagged.
func (r *Registry) Degraded(symbol, interval string) bool {
	m, ok := r.Get(symbol, interval)
	return ok && m.Degraded
}

func (r *Registry) update(symbol, interval string, fn func(*Monitor)) {
	key := kline.Key{Symbol: symbol, Interval: kline.NormalizeInterval(interval)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		fn(&e.monitor)
	}
}
