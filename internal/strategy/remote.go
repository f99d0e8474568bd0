package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"quant-core/internal/indicators"
	"quant-core/internal/kline"
)

// RemoteDecider calls an external AI scoring endpoint. The request carries
// the indicator snapshot plus a bounded tail of the raw window; deep mode
// sends a larger tail. The runner's timeout governs the call through ctx;
// the HTTP client carries no timeout of its own.
type RemoteDecider struct {
	URL        string
	HTTPClient *http.Client

	// Tail bounds on how many bars accompany the request.
	DeepTail        int
	IncrementalTail int
}

func NewRemoteDecider(url string) *RemoteDecider {
	return &RemoteDecider{
		URL:             url,
		HTTPClient:      &http.Client{},
		DeepTail:        1000,
		IncrementalTail: 120,
	}
}

func (d *RemoteDecider) Name() string { return "remote" }

type remoteBar struct {
	OpenTime int64   `json:"t"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

type remoteRequest struct {
	Symbol     string              `json:"symbol"`
	Interval   string              `json:"interval"`
	Mode       string              `json:"mode"`
	Indicators indicators.Snapshot `json:"indicators"`
	Bars       []remoteBar         `json:"bars"`
}

type remoteResponse struct {
	Direction  string  `json:"direction"` // LONG, SHORT, FLAT
	Confidence float64 `json:"confidence"`
	Size       float64 `json:"size"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Reason     string  `json:"reason"`
}

func (d *RemoteDecider) Decide(ctx context.Context, window []kline.Bar, ind indicators.Snapshot, mode Mode) (*Signal, error) {
	tail := d.IncrementalTail
	if mode == ModeDeep {
		tail = d.DeepTail
	}
	if tail > len(window) {
		tail = len(window)
	}

	bars := make([]remoteBar, 0, tail)
	for _, b := range window[len(window)-tail:] {
		bars = append(bars, remoteBar{
			OpenTime: b.OpenTime,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
		})
	}

	var symbol, interval string
	if len(window) > 0 {
		symbol = window[len(window)-1].Symbol
		interval = window[len(window)-1].Interval
	}

	body, err := json.Marshal(remoteRequest{
		Symbol:     symbol,
		Interval:   interval,
		Mode:       string(mode),
		Indicators: ind,
		Bars:       bars,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	res, err := d.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("decider status %d: %s", res.StatusCode, b)
	}

	var out remoteResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode decider response: %w", err)
	}

	dir := Direction(out.Direction)
	if dir != DirectionLong && dir != DirectionShort {
		// Explicit "no signal" from the collaborator.
		return nil, nil
	}

	sig := &Signal{
		Direction:     dir,
		Confidence:    out.Confidence,
		SuggestedSize: out.Size,
		StopLoss:      out.StopLoss,
		TakeProfit:    out.TakeProfit,
		Reason:        fmt.Sprintf("%s (remote %.1fs)", out.Reason, time.Since(started).Seconds()),
	}
	return sig, nil
}
