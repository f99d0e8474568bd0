package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"quant-core/internal/events"
	"quant-core/internal/kline"
	"quant-core/internal/registry"
	"quant-core/internal/symbols"
)

type fakeSource struct {
	records  []json.RawMessage
	failures int // error this many calls before succeeding
	calls    int
}

func (f *fakeSource) Klines(ctx context.Context, symbol, interval string, limit int) ([]json.RawMessage, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("upstream 503")
	}
	return f.records, nil
}

func record(openTime int64, close float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"start":%d,"o":"100","h":"102","l":"99","c":"%g","v":"10"}`, openTime, close))
}

func newBootstrapper(src *fakeSource, minBars int) (*Bootstrapper, *kline.Store, *registry.Registry) {
	tr, _ := symbols.New([]symbols.Mapping{
		{Logical: "ETH_USDC_PERP", DataSource: "ETH_USDC_PERP", Execution: "ETH-USDT-SWAP"},
	})
	store := kline.NewStore(0)
	reg := registry.New()
	_ = reg.Register("ETH_USDC_PERP", "15m", func() {})
	b := &Bootstrapper{
		Source:     src,
		Store:      store,
		Bus:        events.NewBus(),
		Registry:   reg,
		Translator: tr,
		Limit:      1000,
		MinBars:    minBars,
		Retries:    2,
	}
	return b, store, reg
}

func TestBootstrapSkipsMalformedRecords(t *testing.T) {
	src := &fakeSource{records: []json.RawMessage{
		record(900_000, 101),
		json.RawMessage(`{"o":"missing timestamp"}`),
		record(1_800_000, 102),
	}}
	b, store, _ := newBootstrapper(src, 2)

	done, err := b.Bootstrap(context.Background(), "ETH_USDC_PERP", "15m")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if done.Loaded != 2 || done.Skipped != 1 {
		t.Errorf("loaded=%d skipped=%d, want 2/1", done.Loaded, done.Skipped)
	}
	if n := store.Len("ETH_USDC_PERP", "15m"); n != 2 {
		t.Errorf("store has %d bars, want 2", n)
	}
	if done.LatestClosed != 1_800_000 {
		t.Errorf("latest closed boundary = %d", done.LatestClosed)
	}
}

func TestBootstrapIdempotent(t *testing.T) {
	src := &fakeSource{records: []json.RawMessage{record(900_000, 101), record(1_800_000, 102)}}
	b, store, _ := newBootstrapper(src, 1)
	ctx := context.Background()

	if _, err := b.Bootstrap(ctx, "ETH_USDC_PERP", "15m"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := b.Bootstrap(ctx, "ETH_USDC_PERP", "15m"); err != nil {
		t.Fatalf("second: %v", err)
	}
	if n := store.Len("ETH_USDC_PERP", "15m"); n != 2 {
		t.Errorf("double bootstrap duplicated bars: %d", n)
	}
}

func TestBootstrapRetriesThenSucceeds(t *testing.T) {
	src := &fakeSource{failures: 1, records: []json.RawMessage{record(900_000, 101)}}
	b, _, _ := newBootstrapper(src, 1)

	done, err := b.Bootstrap(context.Background(), "ETH_USDC_PERP", "15m")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", src.calls)
	}
	if done.Degraded {
		t.Error("unexpected degraded flag")
	}
}

func TestBootstrapDegradedOnShortHistory(t *testing.T) {
	src := &fakeSource{records: []json.RawMessage{record(900_000, 101)}}
	b, _, reg := newBootstrapper(src, 50)

	done, err := b.Bootstrap(context.Background(), "ETH_USDC_PERP", "15m")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if !done.Degraded {
		t.Error("expected degraded completion")
	}
	if !reg.Degraded("ETH_USDC_PERP", "15m") {
		t.Error("registry not marked degraded")
	}
}

func TestBootstrapExhaustedRetriesDegrades(t *testing.T) {
	src := &fakeSource{failures: 10}
	b, _, _ := newBootstrapper(src, 50)

	done, err := b.Bootstrap(context.Background(), "ETH_USDC_PERP", "15m")
	if err != nil {
		t.Fatalf("fetch failure should degrade, not error: %v", err)
	}
	if !done.Degraded || done.Loaded != 0 {
		t.Errorf("expected empty degraded completion, got %+v", done)
	}
	if src.calls != 3 {
		t.Errorf("expected initial try + 2 retries, got %d", src.calls)
	}
}

func TestBootstrapUnmappedSymbol(t *testing.T) {
	b, _, _ := newBootstrapper(&fakeSource{}, 1)
	_, err := b.Bootstrap(context.Background(), "DOGE_USDC_PERP", "15m")
	var unmapped *symbols.ErrUnmapped
	if !errors.As(err, &unmapped) {
		t.Fatalf("expected ErrUnmapped, got %v", err)
	}
}
