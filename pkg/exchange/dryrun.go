package exchange

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DryRunConfig tunes fill simulation.
type DryRunConfig struct {
	SlippageBps float64 // basis points applied against the taker
	LatencyMs   int     // simulated gateway latency upper bound
}

// DryRunGateway simulates fills locally without touching the venue.
type DryRunGateway struct {
	cfg DryRunConfig
	rng *rand.Rand

	mu        sync.Mutex
	positions map[string]Position
}

func NewDryRunGateway(cfg DryRunConfig) *DryRunGateway {
	return &DryRunGateway{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		positions: make(map[string]Position),
	}
}

func (g *DryRunGateway) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if g.cfg.LatencyMs > 0 {
		delay := time.Duration(g.rng.Intn(g.cfg.LatencyMs)+1) * time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return OrderResult{}, ctx.Err()
		}
	}

	price := req.Price
	if price <= 0 {
		// market order without a reference price fills at the protective
		// midpoint when available
		if req.StopLoss > 0 && req.TakeProfit > 0 {
			price = (req.StopLoss + req.TakeProfit) / 2
		}
	}
	if frac := g.cfg.SlippageBps / 10000.0; frac > 0 && price > 0 {
		noise := g.rng.Float64() * frac
		if req.Side == SideBuy {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}

	g.mu.Lock()
	g.positions[req.Symbol] = Position{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Qty,
		EntryPrice: price,
		MarkPrice:  price,
	}
	g.mu.Unlock()

	id := "dry-" + uuid.NewString()
	log.Printf("[DRY-RUN] %s %s qty=%.6f fill=%.4f sl=%.4f tp=%.4f id=%s",
		req.Side, req.Symbol, req.Qty, price, req.StopLoss, req.TakeProfit, id)

	return OrderResult{
		ExchangeOrderID: id,
		Status:          StatusFilled,
		FillPrice:       price,
	}, nil
}

func (g *DryRunGateway) GetPositions(ctx context.Context, symbol string) ([]Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Position, 0, len(g.positions))
	for _, p := range g.positions {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// ClosePosition removes a simulated position.
func (g *DryRunGateway) ClosePosition(symbol string) {
	g.mu.Lock()
	delete(g.positions, symbol)
	g.mu.Unlock()
}
