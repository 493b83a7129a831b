package price

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpredict/internal/cache"
)

type countingSource struct {
	calls int
	value decimal.Decimal
	err   error
}

func (s *countingSource) Current(context.Context) (Quote, error) {
	s.calls++
	if s.err != nil {
		return Quote{}, s.err
	}
	return Quote{Value: s.value, ObservedAt: time.Now().UTC(), Source: "counting"}, nil
}

func TestCached_ServesWithinTTL(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore()
	store.Now = func() time.Time { return now }
	src := &countingSource{value: decimal.NewFromInt(100)}
	c := &Cached{Source: src, Store: store, TTL: time.Second}

	for i := 0; i < 3; i++ {
		q, err := c.Current(context.Background())
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(100).Equal(q.Value))
	}
	assert.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Second)
	src.value = decimal.NewFromInt(101)
	q, err := c.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(101).Equal(q.Value))
	assert.Equal(t, 2, src.calls)
}

func TestCached_PropagatesSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("upstream down")}
	c := &Cached{Source: src, Store: cache.NewMemoryStore(), TTL: time.Second}
	_, err := c.Current(context.Background())
	require.Error(t, err)
}

func TestCached_DisabledPassesThrough(t *testing.T) {
	src := &countingSource{value: decimal.NewFromInt(7)}
	c := &Cached{Source: src}
	_, _ = c.Current(context.Background())
	_, _ = c.Current(context.Background())
	assert.Equal(t, 2, src.calls)
}
