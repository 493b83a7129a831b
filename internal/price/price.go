// Package price is the reference value gateway: it answers "what is BTC/USD now".
package price

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNoQuote = errors.New("no quote available")

type Quote struct {
	Value      decimal.Decimal `json:"value"`
	ObservedAt time.Time       `json:"observed_at"`
	Source     string          `json:"source"`
}

type Source interface {
	Current(ctx context.Context) (Quote, error)
}

type HealthStatus struct {
	Status     string     `json:"status"`
	LastPollAt *time.Time `json:"last_poll_at,omitempty"`
	LastError  *string    `json:"last_error,omitempty"`
}

func strPtr(s string) *string { return &s }
