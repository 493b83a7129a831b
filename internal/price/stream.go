package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"bitpredict/internal/backoff"
)

const DefaultTradeStreamURL = "wss://stream.binance.com:9443/ws/btcusdt@trade"

// TradeStream follows the Binance trade websocket and keeps the last trade
// price. Current serves that price while it is fresher than MaxStale and
// defers to Fallback otherwise.
type TradeStream struct {
	URL        string
	Fallback   Source
	MaxStale   time.Duration
	BackoffMin time.Duration
	BackoffMax time.Duration
	Logger     *zap.Logger
	Now        func() time.Time

	mu         sync.RWMutex
	latest     *Quote
	receivedAt time.Time
	status     string
	lastError  *string
}

type tradeEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

func (s *TradeStream) Name() string { return "binance_trade_stream" }

func (s *TradeStream) Current(ctx context.Context) (Quote, error) {
	maxStale := s.MaxStale
	if maxStale <= 0 {
		maxStale = 5 * time.Second
	}
	s.mu.RLock()
	latest := s.latest
	receivedAt := s.receivedAt
	s.mu.RUnlock()
	if latest != nil && s.now().Sub(receivedAt) <= maxStale {
		return *latest, nil
	}
	if s.Fallback == nil {
		return Quote{}, ErrNoQuote
	}
	return s.Fallback.Current(ctx)
}

// Run blocks until ctx is cancelled, reconnecting with jittered exponential backoff.
func (s *TradeStream) Run(ctx context.Context) error {
	minBackoff := s.BackoffMin
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	maxBackoff := s.BackoffMax
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	url := strings.TrimSpace(s.URL)
	if url == "" {
		url = DefaultTradeStreamURL
	}

	wait := minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			s.setHealth("down", err)
			s.logWarn("trade stream connect failed", err)
			if err := backoff.Sleep(ctx, wait); err != nil {
				return err
			}
			wait = backoff.Next(wait, maxBackoff)
			continue
		}
		s.setHealth("healthy", nil)
		if s.Logger != nil {
			s.Logger.Info("trade stream connected", zap.String("url", url))
		}
		wait = minBackoff

		err = s.consume(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "reconnect")
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}
		s.setHealth("down", err)
		s.logWarn("trade stream dropped", err)
		if err := backoff.Sleep(ctx, wait); err != nil {
			return err
		}
		wait = backoff.Next(wait, maxBackoff)
	}
}

func (s *TradeStream) consume(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		q, err := parseTrade(data)
		if err != nil {
			continue
		}
		s.mu.Lock()
		s.latest = &q
		s.receivedAt = s.now()
		s.mu.Unlock()
	}
}

func parseTrade(data []byte) (Quote, error) {
	var ev tradeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Quote{}, err
	}
	if ev.EventType != "trade" {
		return Quote{}, fmt.Errorf("unexpected event %q", ev.EventType)
	}
	p, err := decimal.NewFromString(strings.TrimSpace(ev.Price))
	if err != nil || !p.IsPositive() {
		return Quote{}, fmt.Errorf("invalid trade price %q", ev.Price)
	}
	observed := time.UnixMilli(ev.TradeTime).UTC()
	if ev.TradeTime <= 0 {
		observed = time.Now().UTC()
	}
	return Quote{Value: p, ObservedAt: observed, Source: "binance_trade_stream"}, nil
}

func (s *TradeStream) Health() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.status
	if status == "" {
		status = "unknown"
	}
	var last *time.Time
	if !s.receivedAt.IsZero() {
		ts := s.receivedAt
		last = &ts
	}
	return HealthStatus{Status: status, LastPollAt: last, LastError: s.lastError}
}

func (s *TradeStream) setHealth(status string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	if err != nil {
		s.lastError = strPtr(err.Error())
	} else {
		s.lastError = nil
	}
}

func (s *TradeStream) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TradeStream) logWarn(msg string, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, zap.Error(err))
}
