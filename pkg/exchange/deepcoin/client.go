// Package deepcoin implements the execution venue gateway for Deepcoin
// USDT/USDC perpetual swaps.
package deepcoin

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"quant-core/pkg/exchange"
)

// Config holds Deepcoin credentials.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Passphrase string
}

// Client is a signed Deepcoin REST client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepcoin.com"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// 10 private requests/sec per API docs
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

type orderPayload struct {
	InstID      string `json:"instId"`
	TdMode      string `json:"tdMode"`
	Side        string `json:"side"`
	OrdType     string `json:"ordType"`
	Sz          string `json:"sz"`
	Px          string `json:"px,omitempty"`
	Lever       string `json:"lever,omitempty"`
	ClOrdID     string `json:"clOrdId,omitempty"`
	SlTriggerPx string `json:"slTriggerPx,omitempty"`
	TpTriggerPx string `json:"tpTriggerPx,omitempty"`
}

type apiEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type orderData struct {
	OrdID string `json:"ordId"`
	State string `json:"state"`
	AvgPx string `json:"avgPx"`
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

func (c *Client) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return exchange.OrderResult{}, errors.New("deepcoin: API key/secret required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return exchange.OrderResult{}, err
	}

	payload := orderPayload{
		InstID:  req.Symbol,
		TdMode:  "cross",
		Side:    sideValue(req.Side),
		OrdType: typeValue(req.Type),
		Sz:      formatFloat(req.Qty),
		ClOrdID: req.ClientID,
	}
	if req.Type == exchange.OrderTypeLimit {
		payload.Px = formatFloat(req.Price)
	}
	if req.Leverage > 0 {
		payload.Lever = formatFloat(req.Leverage)
	}
	if req.StopLoss > 0 {
		payload.SlTriggerPx = formatFloat(req.StopLoss)
	}
	if req.TakeProfit > 0 {
		payload.TpTriggerPx = formatFloat(req.TakeProfit)
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/deepcoin/trade/order", payload)
	if err != nil {
		return exchange.OrderResult{}, err
	}

	var orders []orderData
	if err := json.Unmarshal(body, &orders); err != nil || len(orders) == 0 {
		// single-object responses are also seen in the wild
		var one orderData
		if err2 := json.Unmarshal(body, &one); err2 != nil {
			return exchange.OrderResult{}, fmt.Errorf("decode order response: %w", err)
		}
		orders = []orderData{one}
	}
	ord := orders[0]
	if ord.SCode != "" && ord.SCode != "0" {
		return exchange.OrderResult{Status: exchange.StatusRejected},
			fmt.Errorf("deepcoin: order rejected: %s %s", ord.SCode, ord.SMsg)
	}

	fill, _ := strconv.ParseFloat(ord.AvgPx, 64)
	return exchange.OrderResult{
		ExchangeOrderID: ord.OrdID,
		Status:          mapState(ord.State),
		FillPrice:       fill,
	}, nil
}

type positionData struct {
	InstID  string `json:"instId"`
	PosSide string `json:"posSide"`
	Pos     string `json:"pos"`
	AvgPx   string `json:"avgPx"`
	MarkPx  string `json:"markPx"`
}

func (c *Client) GetPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	path := "/deepcoin/account/positions?instType=SWAP"
	if symbol != "" {
		path += "&instId=" + symbol
	}
	body, err := c.doSigned(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var raw []positionData
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	positions := make([]exchange.Position, 0, len(raw))
	for _, p := range raw {
		qty, _ := strconv.ParseFloat(p.Pos, 64)
		if qty == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.AvgPx, 64)
		mark, _ := strconv.ParseFloat(p.MarkPx, 64)
		side := exchange.SideBuy
		if p.PosSide == "short" || qty < 0 {
			side = exchange.SideSell
			if qty < 0 {
				qty = -qty
			}
		}
		positions = append(positions, exchange.Position{
			Symbol:     p.InstID,
			Side:       side,
			Quantity:   qty,
			EntryPrice: entry,
			MarkPrice:  mark,
		})
	}
	return positions, nil
}

// doSigned signs timestamp+method+path+body and performs the request.
func (c *Client) doSigned(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(ts + method + path))
	mac.Write(bodyBytes)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("DC-ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("DC-ACCESS-SIGN", sig)
	req.Header.Set("DC-ACCESS-TIMESTAMP", ts)
	req.Header.Set("DC-ACCESS-PASSPHRASE", c.cfg.Passphrase)
	if len(bodyBytes) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepcoin: HTTP %d: %s", res.StatusCode, truncate(raw, 200))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if env.Code != "" && env.Code != "0" {
		return nil, fmt.Errorf("deepcoin: API error %s: %s", env.Code, env.Msg)
	}
	return env.Data, nil
}

func sideValue(s exchange.Side) string {
	if s == exchange.SideSell {
		return "sell"
	}
	return "buy"
}

func typeValue(t exchange.OrderType) string {
	if t == exchange.OrderTypeLimit {
		return "limit"
	}
	return "market"
}

func mapState(state string) exchange.Status {
	switch state {
	case "filled":
		return exchange.StatusFilled
	case "canceled", "rejected":
		return exchange.StatusRejected
	default:
		return exchange.StatusNew
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
