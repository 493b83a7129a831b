package guess

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bitpredict/internal/config"
	"bitpredict/internal/price"
	"bitpredict/internal/repository/memory"
)

var errFeedDown = errors.New("feed down")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// scriptedSource serves its script in order and keeps repeating the last entry.
type scriptedSource struct {
	mu     sync.Mutex
	script []scripted
	calls  int
}

type scripted struct {
	value string
	err   error
}

func quote(value string) scripted { return scripted{value: value} }
func failure(err error) scripted { return scripted{err: err} }

// Script replaces whatever is left of the current script.
func (s *scriptedSource) Script(items ...scripted) {
	s.mu.Lock()
	s.script = append([]scripted(nil), items...)
	s.mu.Unlock()
}

func (s *scriptedSource) Set(value string) { s.Script(quote(value)) }

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedSource) Current(ctx context.Context) (price.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.script) == 0 {
		return price.Quote{}, price.ErrNoQuote
	}
	r := s.script[0]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	if r.err != nil {
		return price.Quote{}, r.err
	}
	return price.Quote{Value: decimal.RequireFromString(r.value), ObservedAt: time.Now().UTC(), Source: "scripted"}, nil
}

type armCall struct {
	userID   string
	placedAt time.Time
}

type recordingArmer struct {
	mu    sync.Mutex
	calls []armCall
}

func (a *recordingArmer) Arm(userID string, placedAt time.Time) {
	a.mu.Lock()
	a.calls = append(a.calls, armCall{userID: userID, placedAt: placedAt})
	a.mu.Unlock()
}

func (a *recordingArmer) Calls() []armCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]armCall(nil), a.calls...)
}

type fixture struct {
	engine *Engine
	store  *memory.Store
	prices *scriptedSource
	clock  *fakeClock
	armer  *recordingArmer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		prices: &scriptedSource{},
		clock:  newFakeClock(),
		armer:  &recordingArmer{},
	}
	f.engine = &Engine{
		Repo:   f.store,
		Prices: f.prices,
		Timer:  f.armer,
		Clock:  f.clock,
		Config: config.GuessConfig{
			SettlementDelay:    60 * time.Second,
			ResolveMaxAttempts: 3,
			ResolveBackoffMin:  time.Millisecond,
			ResolveBackoffMax:  2 * time.Millisecond,
			SweepGrace:         60 * time.Second,
			SweepLimit:         100,
		},
	}
	return f
}

func (f *fixture) enroll(t *testing.T, userID string) {
	t.Helper()
	if err := f.engine.Enroll(context.Background(), userID); err != nil {
		t.Fatalf("enroll %s: %v", userID, err)
	}
}

// gatedSource reports each call on entered and holds it until release is closed.
type gatedSource struct {
	value   string
	entered chan struct{}
	release chan struct{}
}

func newGatedSource(value string) *gatedSource {
	return &gatedSource{value: value, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (s *gatedSource) Current(ctx context.Context) (price.Quote, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return price.Quote{}, ctx.Err()
	}
	return price.Quote{Value: decimal.RequireFromString(s.value), ObservedAt: time.Now().UTC(), Source: "gated"}, nil
}
