package strategy

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"quant-core/internal/events"
	"quant-core/internal/indicators"
	"quant-core/internal/kline"
	"quant-core/internal/registry"
)

// Runner evaluates one symbol/interval against the accumulated bar window
// and forwards resulting signals on the bus. It owns no order placement.
type Runner struct {
	Store    *kline.Store
	Bus      *events.Bus
	Registry *registry.Registry
	Decider  Decider

	// Timeout bounds the decision call. It is distinct from any HTTP
	// client default because remote decisions may include large-context
	// analysis (90-180s is typical).
	Timeout time.Duration

	DeepWindow        int // bars for ModeDeep
	IncrementalWindow int // bars for ModeIncremental
}

type deciderResult struct {
	signal *Signal
	err    error
}

// Evaluate runs one strategy pass. Missing history degrades to a best-effort
// window; a slow or failed decider resolves as "no signal". Neither condition
// ever crashes the scheduler loop. A nil signal return means no action.
func (r *Runner) Evaluate(ctx context.Context, symbol, interval string, mode Mode) *Signal {
	n := r.IncrementalWindow
	if mode == ModeDeep {
		n = r.DeepWindow
	}

	window, err := r.Store.Window(symbol, interval, n, kline.WindowOptions{})
	if err != nil {
		if errors.Is(err, kline.ErrNotFound) {
			log.Printf("strategy: %s/%s no bars yet, skipping %s evaluation", symbol, interval, mode)
			return nil
		}
		log.Printf("strategy: %s/%s window error: %v", symbol, interval, err)
		return nil
	}
	if len(window) == 0 {
		log.Printf("strategy: %s/%s no closed bars yet, skipping %s evaluation", symbol, interval, mode)
		return nil
	}

	degraded := len(window) < n
	if degraded {
		log.Printf("strategy: %s/%s has %d/%d bars, evaluating degraded", symbol, interval, len(window), n)
	}

	ind := indicators.Compute(window)
	boundary := window[len(window)-1].OpenTime

	signal := r.decide(ctx, window, ind, mode)

	if r.Registry != nil {
		r.Registry.RecordEvaluation(symbol, interval, boundary, string(mode))
		degraded = degraded || r.Registry.Degraded(symbol, interval)
	}

	if signal == nil {
		return nil
	}

	signal.ID = uuid.NewString()
	signal.Symbol = symbol
	signal.GeneratedAt = boundary
	signal.Mode = mode
	signal.Degraded = degraded
	if !signal.Actionable() {
		return nil
	}

	log.Printf("strategy: %s %s signal dir=%s conf=%.2f size=%.4f sl=%.2f tp=%.2f (%s)",
		symbol, mode, signal.Direction, signal.Confidence, signal.SuggestedSize, signal.StopLoss, signal.TakeProfit, signal.Reason)
	if r.Bus != nil {
		r.Bus.Publish(events.EventSignalGenerated, *signal)
	}
	return signal
}

// decide invokes the collaborator under the runner's timeout. A timeout is
// absorbed as "no signal"; the boundary is not retried, the next attempt
// happens at the next bar close.
func (r *Runner) decide(ctx context.Context, window []kline.Bar, ind indicators.Snapshot, mode Mode) *Signal {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan deciderResult, 1)
	go func() {
		sig, err := r.Decider.Decide(ctx, window, ind, mode)
		done <- deciderResult{signal: sig, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Printf("strategy: decider %s timed out after %s, treating as no signal", r.Decider.Name(), timeout)
		return nil
	case res := <-done:
		if res.err != nil {
			log.Printf("strategy: decider %s error: %v, treating as no signal", r.Decider.Name(), res.err)
			return nil
		}
		return res.signal
	}
}
