package backpack

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// KlineUpdate is one streamed bar update, partial or final.
type KlineUpdate struct {
	Symbol      string
	Interval    string
	OpenTime    int64 // unix milliseconds
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	Final       bool // true once the bar's window has fully elapsed
}

// StreamClient manages kline streaming over the venue's public websocket.
type StreamClient struct {
	BaseURL string
	dialer  *websocket.Dialer

	// ReconnectAttempts bounds dial retries after a dropped connection
	// before the stream is considered permanently lost.
	ReconnectAttempts int
}

// NewStreamClient builds a websocket client for the given base URL.
func NewStreamClient(baseURL string) *StreamClient {
	return &StreamClient{
		BaseURL:           baseURL,
		dialer:            websocket.DefaultDialer,
		ReconnectAttempts: 5,
	}
}

// SubscribeKlines streams bar updates for one symbol/interval. The returned
// channel is closed when the context is cancelled or the connection is
// permanently lost after bounded reconnect attempts; the caller stops
// monitoring that symbol only.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan KlineUpdate, func(), error) {
	stream := fmt.Sprintf("kline.%s.%s", interval, symbol)

	conn, err := c.dial(ctx, stream)
	if err != nil {
		return nil, nil, fmt.Errorf("dial kline stream: %w", err)
	}

	out := make(chan KlineUpdate, 100)
	var once sync.Once
	var mu sync.Mutex // guards conn across reconnects
	stop := func() {
		once.Do(func() {
			mu.Lock()
			if conn != nil {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
			}
			mu.Unlock()
		})
	}

	go func() {
		defer close(out)
		defer stop()

		attempts := 0
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil ||
					websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				if attempts >= c.ReconnectAttempts {
					log.Printf("backpack ws %s: connection lost permanently after %d attempts: %v", stream, attempts, err)
					return
				}
				attempts++
				backoff := time.Duration(attempts) * 2 * time.Second
				log.Printf("backpack ws %s: read error (%v), reconnecting in %s (attempt %d/%d)", stream, err, backoff, attempts, c.ReconnectAttempts)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				next, derr := c.dial(ctx, stream)
				if derr != nil {
					log.Printf("backpack ws %s: redial failed: %v", stream, derr)
					continue
				}
				mu.Lock()
				_ = conn.Close()
				conn = next
				mu.Unlock()
				continue
			}
			attempts = 0

			update, err := parseKlineEvent(msg, symbol, interval)
			if err != nil {
				log.Printf("backpack ws %s: parse error: %v", stream, err)
				continue
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}

func (c *StreamClient) dial(ctx context.Context, stream string) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{stream},
	}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// parseKlineEvent decodes only the fields the engine needs. Timestamps may
// arrive in seconds, milliseconds, or ISO strings; prices as strings or
// numbers.
func parseKlineEvent(msg []byte, symbol, interval string) (KlineUpdate, error) {
	var raw struct {
		Data struct {
			Symbol      string `json:"s"`
			StartTime   any    `json:"t"`
			Open        any    `json:"o"`
			High        any    `json:"h"`
			Low         any    `json:"l"`
			Close       any    `json:"c"`
			Volume      any    `json:"v"`
			QuoteVolume any    `json:"qv"`
			Final       bool   `json:"X"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return KlineUpdate{}, err
	}
	if raw.Data.StartTime == nil {
		return KlineUpdate{}, fmt.Errorf("kline event missing start time")
	}

	sym := raw.Data.Symbol
	if sym == "" {
		sym = symbol
	}
	return KlineUpdate{
		Symbol:      sym,
		Interval:    interval,
		OpenTime:    toMillis(raw.Data.StartTime),
		Open:        toFloat(raw.Data.Open),
		High:        toFloat(raw.Data.High),
		Low:         toFloat(raw.Data.Low),
		Close:       toFloat(raw.Data.Close),
		Volume:      toFloat(raw.Data.Volume),
		QuoteVolume: toFloat(raw.Data.QuoteVolume),
		Final:       raw.Data.Final,
	}, nil
}
