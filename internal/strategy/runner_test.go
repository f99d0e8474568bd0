package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"quant-core/internal/events"
	"quant-core/internal/indicators"
	"quant-core/internal/kline"
	"quant-core/internal/registry"
)

type stubDecider struct {
	signal *Signal
	err    error
	delay  time.Duration
	mode   Mode // last mode seen
	bars   int  // last window length seen
}

func (d *stubDecider) Name() string { return "stub" }

func (d *stubDecider) Decide(ctx context.Context, window []kline.Bar, ind indicators.Snapshot, mode Mode) (*Signal, error) {
	d.mode = mode
	d.bars = len(window)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.signal, d.err
}

func seedStore(n int) *kline.Store {
	store := kline.NewStore(0)
	bars := make([]kline.Bar, 0, n)
	for i := 1; i <= n; i++ {
		bars = append(bars, kline.Bar{
			OpenTime: int64(i) * 900_000,
			Open:     100, High: 102, Low: 99, Close: 100 + float64(i%5),
			Volume: 10,
		})
	}
	store.BulkLoad("ETH_USDC_PERP", "15m", bars)
	return store
}

func newRunner(store *kline.Store, d Decider) *Runner {
	return &Runner{
		Store:             store,
		Bus:               events.NewBus(),
		Registry:          registry.New(),
		Decider:           d,
		Timeout:           time.Second,
		DeepWindow:        100,
		IncrementalWindow: 20,
	}
}

func TestEvaluateModesSelectWindow(t *testing.T) {
	store := seedStore(200)
	d := &stubDecider{}
	r := newRunner(store, d)

	r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeDeep)
	if d.mode != ModeDeep || d.bars != 100 {
		t.Errorf("deep pass saw mode=%s bars=%d", d.mode, d.bars)
	}

	r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeIncremental)
	if d.mode != ModeIncremental || d.bars != 20 {
		t.Errorf("incremental pass saw mode=%s bars=%d", d.mode, d.bars)
	}
}

func TestEvaluateStampsSignal(t *testing.T) {
	store := seedStore(50)
	d := &stubDecider{signal: &Signal{Direction: DirectionLong, Confidence: 0.7, SuggestedSize: 0.5}}
	r := newRunner(store, d)

	sig := r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeIncremental)
	if sig == nil {
		t.Fatal("expected signal")
	}
	if sig.ID == "" || sig.Symbol != "ETH_USDC_PERP" || sig.Mode != ModeIncremental {
		t.Errorf("signal not stamped: %+v", sig)
	}
	if sig.GeneratedAt != 50*900_000 {
		t.Errorf("generated_at = %d, want last closed boundary", sig.GeneratedAt)
	}
}

func TestEvaluateTimeoutMeansNoSignal(t *testing.T) {
	store := seedStore(50)
	d := &stubDecider{
		signal: &Signal{Direction: DirectionLong, Confidence: 0.9, SuggestedSize: 1},
		delay:  500 * time.Millisecond,
	}
	r := newRunner(store, d)
	r.Timeout = 50 * time.Millisecond

	start := time.Now()
	sig := r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeIncremental)
	elapsed := time.Since(start)

	if sig != nil {
		t.Errorf("timeout should yield no signal, got %+v", sig)
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("evaluation not bounded by timeout: %s", elapsed)
	}
}

func TestEvaluateDeciderErrorMeansNoSignal(t *testing.T) {
	store := seedStore(50)
	d := &stubDecider{err: errors.New("upstream down")}
	r := newRunner(store, d)

	if sig := r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeIncremental); sig != nil {
		t.Errorf("decider error should yield no signal, got %+v", sig)
	}
}

func TestEvaluateShortHistoryDegrades(t *testing.T) {
	store := seedStore(5)
	d := &stubDecider{signal: &Signal{Direction: DirectionShort, Confidence: 0.8, SuggestedSize: 0.2}}
	r := newRunner(store, d)

	sig := r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeIncremental)
	if sig == nil {
		t.Fatal("short history should still evaluate")
	}
	if !sig.Degraded {
		t.Error("expected degraded flag on short-window signal")
	}
	if d.bars != 5 {
		t.Errorf("expected best-effort window of 5, got %d", d.bars)
	}
}

func TestEvaluateNoHistoryNoSignal(t *testing.T) {
	r := newRunner(kline.NewStore(0), &stubDecider{})
	if sig := r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeDeep); sig != nil {
		t.Errorf("expected nil signal on empty store, got %+v", sig)
	}
}

func TestEvaluateRecordsEvaluation(t *testing.T) {
	store := seedStore(50)
	r := newRunner(store, &stubDecider{})
	_ = r.Registry.Register("ETH_USDC_PERP", "15m", func() {})

	r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeDeep)
	mon, ok := r.Registry.Get("ETH_USDC_PERP", "15m")
	if !ok {
		t.Fatal("monitor missing")
	}
	if mon.LastEvaluated != 50*900_000 || mon.LastMode != "DEEP" {
		t.Errorf("evaluation not recorded: %+v", mon)
	}
}

func TestFlatSignalIsNotEmitted(t *testing.T) {
	store := seedStore(50)
	d := &stubDecider{signal: &Signal{Direction: DirectionFlat}}
	r := newRunner(store, d)

	if sig := r.Evaluate(context.Background(), "ETH_USDC_PERP", "15m", ModeIncremental); sig != nil {
		t.Errorf("FLAT should not be emitted, got %+v", sig)
	}
}
