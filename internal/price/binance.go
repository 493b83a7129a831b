package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultTickerEndpoint = "https://api.binance.com/api/v3/ticker/price?symbol=BTCUSDT"

// BinanceTicker fetches the spot price from the Binance REST ticker on every call.
type BinanceTicker struct {
	HTTP     *http.Client
	Endpoint string

	mu        sync.Mutex
	lastPoll  *time.Time
	lastError *string
	status    string
}

func (c *BinanceTicker) Name() string { return "binance_ticker" }

func (c *BinanceTicker) Current(ctx context.Context) (Quote, error) {
	now := time.Now().UTC()
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		endpoint = DefaultTickerEndpoint
	}
	p, err := c.fetchPrice(ctx, endpoint)
	if err != nil {
		c.setHealth(now, "down", strPtr(err.Error()))
		return Quote{}, err
	}
	c.setHealth(now, "healthy", nil)
	return Quote{Value: p, ObservedAt: now, Source: c.Name()}, nil
}

func (c *BinanceTicker) fetchPrice(ctx context.Context, endpoint string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("binance ticker http %d", resp.StatusCode)
	}
	var parsed struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, err
	}
	p, err := decimal.NewFromString(strings.TrimSpace(parsed.Price))
	if err != nil || !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid price %q", parsed.Price)
	}
	return p, nil
}

func (c *BinanceTicker) Health() HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := c.status
	if strings.TrimSpace(status) == "" {
		status = "unknown"
	}
	return HealthStatus{Status: status, LastPollAt: c.lastPoll, LastError: c.lastError}
}

func (c *BinanceTicker) setHealth(ts time.Time, status string, errStr *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPoll = &ts
	c.status = status
	c.lastError = errStr
}

func (c *BinanceTicker) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}
