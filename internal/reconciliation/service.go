// Package reconciliation keeps local position records aligned with the
// venue and releases risk cooldowns when positions close.
package reconciliation

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"quant-core/internal/risk"
	"quant-core/internal/symbols"
	"quant-core/pkg/db"
	"quant-core/pkg/exchange"
)

// Service periodically compares the positions table with the venue.
type Service struct {
	Gateway    exchange.Gateway
	Queries    *db.Queries
	Gate       *risk.Gate
	Translator *symbols.Translator
	Interval   time.Duration

	mu       sync.Mutex
	autoSync bool
}

// Report contains the result of one reconciliation pass.
type Report struct {
	Timestamp time.Time
	Diffs     []Diff
	HasDiffs  bool
	Synced    int
}

// Diff is one symbol whose local and venue quantities disagree.
type Diff struct {
	Symbol   string
	LocalQty float64
	VenueQty float64
	Synced   bool
}

func NewService(gw exchange.Gateway, queries *db.Queries, gate *risk.Gate, tr *symbols.Translator, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Service{
		Gateway:    gw,
		Queries:    queries,
		Gate:       gate,
		Translator: tr,
		Interval:   interval,
		autoSync:   true,
	}
}

// SetAutoSync enables or disables writing corrections back to the DB.
func (s *Service) SetAutoSync(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSync = enabled
}

// Start runs reconciliation every Interval until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := s.Reconcile(ctx)
				if err != nil {
					log.Printf("reconciliation: %v", err)
					continue
				}
				if report.HasDiffs {
					log.Printf("reconciliation: %d diff(s), %d synced", len(report.Diffs), report.Synced)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Reconcile performs one pass. Positions present locally but gone on the
// venue are treated as closed: the record is removed and the symbol's
// cooldown starts.
func (s *Service) Reconcile(ctx context.Context) (Report, error) {
	s.mu.Lock()
	autoSync := s.autoSync
	s.mu.Unlock()

	report := Report{Timestamp: time.Now()}

	venuePositions, err := s.Gateway.GetPositions(ctx, "")
	if err != nil {
		return report, err
	}
	venueBySymbol := make(map[string]float64, len(venuePositions))
	for _, p := range venuePositions {
		logical := s.Translator.FromExecution(p.Symbol)
		venueBySymbol[logical] = p.Quantity
	}

	local, err := s.Queries.GetPositions(ctx)
	if err != nil {
		return report, err
	}

	for _, pos := range local {
		venueQty := venueBySymbol[pos.Symbol]
		if math.Abs(venueQty-pos.Qty) < 1e-9 {
			continue
		}
		diff := Diff{
			Symbol:   pos.Symbol,
			LocalQty: pos.Qty,
			VenueQty: venueQty,
		}
		if autoSync {
			if venueQty == 0 {
				if err := s.Queries.DeletePosition(ctx, pos.Symbol); err == nil {
					diff.Synced = true
					report.Synced++
					if s.Gate != nil {
						s.Gate.OnPositionClosed(pos.Symbol, time.Now())
					}
					log.Printf("reconciliation: %s closed on venue, cooldown started", pos.Symbol)
				}
			} else {
				pos.Qty = venueQty
				if err := s.Queries.UpsertPosition(ctx, pos); err == nil {
					diff.Synced = true
					report.Synced++
				}
			}
		}
		report.Diffs = append(report.Diffs, diff)
	}
	report.HasDiffs = len(report.Diffs) > 0
	return report, nil
}
