// Package snapshot publishes per-symbol indicator snapshots to Redis so
// dashboards and sibling services can read engine state without an API call.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quant-core/internal/indicators"
	"quant-core/internal/strategy"
)

const (
	snapshotTTL = 30 * time.Minute
	signalTTL   = 24 * time.Hour
)

// Publisher mirrors engine state into Redis. All methods are best-effort:
// callers log and continue when Redis is down.
type Publisher struct {
	client *redis.Client
}

// New connects to Redis at addr. An empty addr disables publishing and
// returns (nil, nil).
func New(addr, password string, dbNum int) (*Publisher, error) {
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Publisher{client: client}, nil
}

type indicatorRecord struct {
	Symbol      string              `json:"symbol"`
	Interval    string              `json:"interval"`
	BarOpenTime int64               `json:"bar_open_time"`
	Indicators  indicators.Snapshot `json:"indicators"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// PublishIndicators stores the latest indicator snapshot for a symbol.
func (p *Publisher) PublishIndicators(ctx context.Context, symbol, interval string, barOpenTime int64, snap indicators.Snapshot) error {
	if p == nil {
		return nil
	}
	rec := indicatorRecord{
		Symbol:      symbol,
		Interval:    interval,
		BarOpenTime: barOpenTime,
		Indicators:  snap,
		UpdatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("engine:indicators:%s:%s", symbol, interval)
	return p.client.Set(ctx, key, data, snapshotTTL).Err()
}

// PublishSignal appends an emitted signal to the per-symbol signal history.
func (p *Publisher) PublishSignal(ctx context.Context, sig strategy.Signal) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("engine:signals:%s", sig.Symbol)
	if err := p.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(sig.GeneratedAt),
		Member: data,
	}).Err(); err != nil {
		return err
	}
	cutoff := time.Now().Add(-signalTTL).UnixMilli()
	return p.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff)).Err()
}

// RecentSignals returns signals for symbol newer than since (unix ms).
func (p *Publisher) RecentSignals(ctx context.Context, symbol string, since int64) ([]strategy.Signal, error) {
	if p == nil {
		return nil, nil
	}
	key := fmt.Sprintf("engine:signals:%s", symbol)
	members, err := p.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	signals := make([]strategy.Signal, 0, len(members))
	for _, m := range members {
		var sig strategy.Signal
		if err := json.Unmarshal([]byte(m), &sig); err != nil {
			continue
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
