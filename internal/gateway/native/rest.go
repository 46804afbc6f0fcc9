package native

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/gateway"
)

type restClient struct {
	venue       string
	baseURL     string
	apiKey      string
	apiSecret   string
	httpClient  *http.Client
	rateLimiter *gateway.RateLimiter
	logger      *slog.Logger
}

func newRESTClient(venue, baseURL, apiKey, apiSecret string, rl *gateway.RateLimiter, logger *slog.Logger) *restClient {
	return &restClient{
		venue:     venue,
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    90 * time.Second,
				DisableCompression: true,
			},
		},
		rateLimiter: rl,
		logger:      logger,
	}
}

func (c *restClient) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *restClient) doRequest(ctx context.Context, method, path string, body interface{}, category domain.EndpointCategory) ([]byte, error) {
	if err := c.rateLimiter.Acquire(ctx, category, 1); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	url := c.baseURL + path

	var reqBody io.Reader
	var payload string
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		payload = string(data)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
		signature := c.sign(timestamp + method + path + payload)
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("X-API-TIMESTAMP", timestamp)
		req.Header.Set("X-API-SIGN", signature)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *restClient) loadMarkets(ctx context.Context) (map[string]domain.MarketInfo, error) {
	respData, err := c.doRequest(ctx, "GET", "/api/v1/markets", nil, domain.EndpointPublicData)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			Symbol      string `json:"symbol"`
			Active      bool   `json:"active"`
			MinNotional string `json:"minNotional"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("parse markets: %w", err)
	}

	out := make(map[string]domain.MarketInfo, len(result.Data))
	for _, m := range result.Data {
		minNotional, _ := domain.ParseDecimal(m.MinNotional)
		out[m.Symbol] = domain.MarketInfo{
			Symbol:      m.Symbol,
			Active:      m.Active,
			MinNotional: minNotional,
		}
	}
	return out, nil
}

func (c *restClient) fetchFees(ctx context.Context, symbol string) (domain.FeeRates, error) {
	path := "/api/v1/trade-fees?symbol=" + symbol
	respData, err := c.doRequest(ctx, "GET", path, nil, domain.EndpointAccount)
	if err != nil {
		return domain.FeeRates{}, err
	}

	var result struct {
		Data struct {
			MakerFeeRate string `json:"makerFeeRate"`
			TakerFeeRate string `json:"takerFeeRate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.FeeRates{}, fmt.Errorf("parse fee tier: %w", err)
	}

	maker, _ := domain.ParseDecimal(result.Data.MakerFeeRate)
	taker, _ := domain.ParseDecimal(result.Data.TakerFeeRate)
	return domain.FeeRates{Maker: maker.InexactFloat64(), Taker: taker.InexactFloat64()}, nil
}

func (c *restClient) fetchOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBookSnapshot, error) {
	path := fmt.Sprintf("/api/v1/orderbook?symbol=%s&depth=%d", symbol, depth)
	respData, err := c.doRequest(ctx, "GET", path, nil, domain.EndpointPublicData)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	var result struct {
		Data struct {
			Bids []wireLevel `json:"bids"`
			Asks []wireLevel `json:"asks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("parse order book: %w", err)
	}

	return domain.OrderBookSnapshot{
		Venue:          c.venue,
		Symbol:         symbol,
		Bids:           toLevels(result.Data.Bids),
		Asks:           toLevels(result.Data.Asks),
		LocalTimestamp: time.Now(),
	}, nil
}

func (c *restClient) createOrder(ctx context.Context, spec domain.OrderSpec) (domain.Fill, error) {
	clientOID := uuid.NewString()
	body := map[string]interface{}{
		"symbol":    spec.Symbol,
		"side":      string(spec.Side),
		"type":      string(spec.Type),
		"size":      spec.Qty.String(),
		"tif":       string(spec.TIF),
		"clientOid": clientOID,
	}

	respData, err := c.doRequest(ctx, "POST", "/api/v1/orders", body, domain.EndpointOrderPlace)
	if err != nil {
		return domain.Fill{}, err
	}

	var result struct {
		Data struct {
			OrderID  string `json:"orderId"`
			Price    string `json:"avgFillPrice"`
			Size     string `json:"dealSize"`
			Fee      string `json:"fee"`
			FeeRate  string `json:"feeRate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.Fill{}, fmt.Errorf("parse order response: %w", err)
	}

	price, _ := domain.ParseDecimal(result.Data.Price)
	size, _ := domain.ParseDecimal(result.Data.Size)
	fee, _ := domain.ParseDecimal(result.Data.Fee)
	feeRate, _ := domain.ParseDecimal(result.Data.FeeRate)

	return domain.Fill{
		ID:        uuid.New(),
		Venue:     c.venue,
		Symbol:    spec.Symbol,
		Side:      spec.Side,
		Price:     price,
		Qty:       size,
		Fee:       fee,
		FeeRate:   feeRate,
		Notional:  price.Mul(size),
		TIF:       spec.TIF,
		Type:      spec.Type,
		Timestamp: time.Now(),
	}, nil
}

func (c *restClient) balances(ctx context.Context) (map[string]domain.Balance, error) {
	respData, err := c.doRequest(ctx, "GET", "/api/v1/accounts", nil, domain.EndpointAccount)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			Currency  string `json:"currency"`
			Available string `json:"available"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("parse balances: %w", err)
	}

	out := make(map[string]domain.Balance, len(result.Data))
	for _, b := range result.Data {
		free, _ := domain.ParseDecimal(b.Available)
		out[b.Currency] = domain.Balance{Venue: c.venue, Asset: b.Currency, Free: free}
	}
	return out, nil
}
