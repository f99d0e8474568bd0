// Package market adapts data-source feeds to the engine.
package market

import (
	"context"

	"quant-core/pkg/market/backpack"
)

// Feed delivers live kline updates for a symbol.
type Feed interface {
	Subscribe(ctx context.Context, symbol, interval string) (<-chan backpack.KlineUpdate, func(), error)
}

// LiveFeed streams klines from the exchange websocket.
type LiveFeed struct {
	Stream *backpack.StreamClient
}

func (f *LiveFeed) Subscribe(ctx context.Context, symbol, interval string) (<-chan backpack.KlineUpdate, func(), error) {
	return f.Stream.SubscribeKlines(ctx, symbol, interval)
}
