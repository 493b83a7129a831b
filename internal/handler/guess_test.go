package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpredict/internal/auth"
	"bitpredict/internal/config"
	"bitpredict/internal/guess"
	"bitpredict/internal/price"
	"bitpredict/internal/repository/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubPrices struct {
	mu    sync.Mutex
	value string
	err   error
}

func (s *stubPrices) Set(value string, err error) {
	s.mu.Lock()
	s.value, s.err = value, err
	s.mu.Unlock()
}

func (s *stubPrices) Current(ctx context.Context) (price.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return price.Quote{}, s.err
	}
	return price.Quote{Value: decimal.RequireFromString(s.value), ObservedAt: time.Unix(1700000000, 0).UTC(), Source: "stub"}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	router *gin.Engine
	engine *guess.Engine
	clock  *testClock
	prices *stubPrices
	jwt    auth.JWT
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &server{
		clock:  &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		prices: &stubPrices{value: "100"},
		jwt:    auth.JWT{Secret: []byte("test-secret"), TokenTTL: time.Hour, Issuer: "bitpredict"},
	}
	s.engine = &guess.Engine{
		Repo:   memory.New(),
		Prices: s.prices,
		Clock:  s.clock,
		Config: config.GuessConfig{SettlementDelay: 60 * time.Second, ResolveMaxAttempts: 1},
	}
	s.router = gin.New()
	s.router.Use(RequestID())
	h := &GuessHandler{Engine: s.engine, Prices: s.prices, Verifier: s.jwt}
	h.Register(s.router)
	return s
}

func (s *server) token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := s.jwt.Sign(userID)
	require.NoError(t, err)
	return tok
}

func (s *server) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestPlaceGuess(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, "alice")

	w, env := s.do(t, http.MethodPost, "/api/v1/guess", tok, map[string]string{"direction": "up"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got pendingGuessView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "up", got.Direction)
	assert.Equal(t, "100", got.ReferenceValue)
	assert.Equal(t, s.clock.Now(), got.PlacedAt)
	assert.Equal(t, s.clock.Now().Add(60*time.Second), got.SettlesAt)

	w, env = s.do(t, http.MethodPost, "/api/v1/guess", tok, map[string]string{"direction": "down"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, http.StatusConflict, env.Code)
}

func TestPlaceGuess_BadRequests(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, "alice")

	w, _ := s.do(t, http.MethodPost, "/api/v1/guess", tok, map[string]string{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/guess", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/guess", "", map[string]string{"direction": "up"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPlaceGuess_ReferenceUnavailable(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, "alice")
	s.prices.Set("", errors.New("upstream 502"))

	w, env := s.do(t, http.MethodPost, "/api/v1/guess", tok, map[string]string{"direction": "up"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, guess.ErrReferenceUnavailable.Error(), env.Message)

	w, env = s.do(t, http.MethodGet, "/api/v1/status", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st statusView
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Nil(t, st.PendingGuess)
}

func TestStatus(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, "alice")

	w, env := s.do(t, http.MethodGet, "/api/v1/status", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"score":0,"pending_guess":null}`, string(env.Data))

	w, _ = s.do(t, http.MethodPost, "/api/v1/guess", tok, map[string]string{"direction": "down"})
	require.Equal(t, http.StatusOK, w.Code)

	s.clock.Advance(30 * time.Second)
	_, env = s.do(t, http.MethodGet, "/api/v1/status", tok, nil)
	var st statusView
	require.NoError(t, json.Unmarshal(env.Data, &st))
	require.NotNil(t, st.PendingGuess)
	assert.Equal(t, "down", st.PendingGuess.Direction)

	// The resolver never ran; the read expires the guess without scoring it.
	s.clock.Advance(90 * time.Second)
	_, env = s.do(t, http.MethodGet, "/api/v1/status", tok, nil)
	assert.JSONEq(t, `{"score":0,"pending_guess":null}`, string(env.Data))

	_, env = s.do(t, http.MethodGet, "/api/v1/history", tok, nil)
	var rows []settlementView
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "expired", rows[0].Kind)
	assert.Nil(t, rows[0].SettledValue)
}

func TestHistory_AfterResolve(t *testing.T) {
	s := newServer(t)
	tok := s.token(t, "alice")

	w, _ := s.do(t, http.MethodPost, "/api/v1/guess", tok, map[string]string{"direction": "up"})
	require.Equal(t, http.StatusOK, w.Code)
	s.clock.Advance(60 * time.Second)
	s.prices.Set("90", nil)
	res, err := s.engine.Resolve(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, guess.StatusResolved, res.Status)

	_, env := s.do(t, http.MethodGet, "/api/v1/status", tok, nil)
	assert.JSONEq(t, `{"score":-1,"pending_guess":null}`, string(env.Data))

	_, env = s.do(t, http.MethodGet, "/api/v1/history?limit=5", tok, nil)
	var rows []settlementView
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "resolved", rows[0].Kind)
	assert.Equal(t, "incorrect", rows[0].Outcome)
	require.NotNil(t, rows[0].SettledValue)
	assert.Equal(t, "90", *rows[0].SettledValue)
	assert.Equal(t, int64(-1), rows[0].ScoreAfter)

	w, _ = s.do(t, http.MethodPost, "/api/v1/guess", tok, map[string]string{"direction": "down"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCurrentPrice(t *testing.T) {
	s := newServer(t)
	s.prices.Set("64000.5", nil)

	w, env := s.do(t, http.MethodGet, "/api/v1/price", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var q quoteView
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, "64000.5", q.Value)
	assert.Equal(t, "stub", q.Source)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	s.prices.Set("", price.ErrNoQuote)
	w, _ = s.do(t, http.MethodGet, "/api/v1/price", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
