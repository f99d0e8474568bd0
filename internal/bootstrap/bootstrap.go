// Package bootstrap populates the kline store from REST history before live
// trading begins, tolerating heterogeneous upstream encodings.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"quant-core/internal/events"
	"quant-core/internal/kline"
	"quant-core/internal/registry"
	"quant-core/internal/symbols"
)

// HistorySource is the market-data collaborator. Records stay raw so shape
// detection happens in exactly one place, the kline parser.
type HistorySource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]json.RawMessage, error)
}

// Complete is published on the bus when one symbol's backfill finishes. It
// triggers exactly one immediate deep-mode evaluation for the symbol, letting
// the system produce a first signal at startup instead of waiting up to one
// full interval.
type Complete struct {
	Symbol       string
	Interval     string
	Loaded       int
	Skipped      int
	Degraded     bool
	LatestClosed int64 // open time of the newest closed bar, unix ms
}

// Bootstrapper fills the store per configured symbol.
type Bootstrapper struct {
	Source     HistorySource
	Store      *kline.Store
	Bus        *events.Bus
	Registry   *registry.Registry
	Translator *symbols.Translator

	Limit   int // bars requested per symbol
	MinBars int // below this after retries the symbol is flagged degraded
	Retries int
}

// Bootstrap backfills one symbol/interval and emits the completion event.
// Malformed records are skipped and logged without aborting the batch. A
// short fetch marks the symbol degraded rather than blocking other symbols.
func (b *Bootstrapper) Bootstrap(ctx context.Context, symbol, interval string) (Complete, error) {
	dataSymbol, err := b.Translator.DataSource(symbol)
	if err != nil {
		// Unmapped symbol stops monitoring for this symbol only.
		return Complete{}, err
	}

	var records []json.RawMessage
	for attempt := 0; ; attempt++ {
		records, err = b.Source.Klines(ctx, dataSymbol, interval, b.Limit)
		if err == nil {
			break
		}
		if attempt >= b.Retries || ctx.Err() != nil {
			log.Printf("bootstrap: %s history fetch failed after %d attempt(s): %v", symbol, attempt+1, err)
			records = nil
			break
		}
		log.Printf("bootstrap: %s history fetch attempt %d failed: %v, retrying", symbol, attempt+1, err)
		select {
		case <-ctx.Done():
			return Complete{}, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}

	loaded, skipped := 0, 0
	bars := make([]kline.Bar, 0, len(records))
	for _, rec := range records {
		bar, perr := kline.ParseRecord(rec)
		if perr != nil {
			var malformed *kline.MalformedRecordError
			if errors.As(perr, &malformed) {
				skipped++
				log.Printf("bootstrap: %s skipping record: %v", symbol, perr)
				continue
			}
			return Complete{}, perr
		}
		bars = append(bars, bar)
		loaded++
	}

	// BulkLoad is idempotent: re-running a backfill cannot duplicate bars.
	b.Store.BulkLoad(symbol, interval, bars)

	have := b.Store.Len(symbol, interval)
	degraded := have < b.MinBars
	if degraded {
		log.Printf("bootstrap: %s has %d/%d bars, marking degraded (strategy still runs)", symbol, have, b.MinBars)
		if b.Registry != nil {
			b.Registry.MarkDegraded(symbol, interval)
		}
		if b.Bus != nil {
			b.Bus.Publish(events.EventSymbolDegraded, Complete{Symbol: symbol, Interval: interval, Loaded: loaded, Skipped: skipped, Degraded: true})
		}
	}

	done := Complete{
		Symbol:   symbol,
		Interval: interval,
		Loaded:   loaded,
		Skipped:  skipped,
		Degraded: degraded,
	}
	if latest, lerr := b.Store.LatestClosed(symbol, interval); lerr == nil {
		done.LatestClosed = latest.OpenTime
	}

	log.Printf("bootstrap: %s complete loaded=%d skipped=%d cached=%d degraded=%v", symbol, loaded, skipped, have, degraded)
	if b.Bus != nil {
		b.Bus.Publish(events.EventBootstrapComplete, done)
	}
	return done, nil
}
