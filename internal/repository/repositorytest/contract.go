// Package repositorytest holds the behavioural contract every
// repository.GuessRepository implementation must satisfy.
package repositorytest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitpredict/internal/models"
	"bitpredict/internal/repository"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) repository.GuessRepository

func Run(t *testing.T, newStore Factory) {
	t.Run("EnsureIsIdempotent", func(t *testing.T) { testEnsureIsIdempotent(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("PlaceOnlyOnce", func(t *testing.T) { testPlaceOnlyOnce(t, newStore(t)) })
	t.Run("PlaceUnknownUser", func(t *testing.T) { testPlaceUnknownUser(t, newStore(t)) })
	t.Run("SettleClearsAndScores", func(t *testing.T) { testSettleClearsAndScores(t, newStore(t)) })
	t.Run("SettleStaleVersion", func(t *testing.T) { testSettleStaleVersion(t, newStore(t)) })
	t.Run("ClearKeepsScore", func(t *testing.T) { testClearKeepsScore(t, newStore(t)) })
	t.Run("ListPending", func(t *testing.T) { testListPending(t, newStore(t)) })
	t.Run("ConcurrentPlace", func(t *testing.T) { testConcurrentPlace(t, newStore(t)) })
}

// Settlement builds an audit row for tests.
func Settlement(userID, kind string, delta, after int64) *models.GuessSettlement {
	now := time.Now().UTC()
	return &models.GuessSettlement{
		ID:             uuid.NewString(),
		UserID:         userID,
		Kind:           kind,
		Direction:      models.DirectionUp,
		ReferenceValue: decimal.NewFromInt(100),
		Outcome:        models.OutcomeNone,
		ScoreDelta:     delta,
		ScoreAfter:     after,
		PlacedAt:       now.Add(-time.Minute),
		SettledAt:      now,
	}
}

func place(t *testing.T, s repository.GuessRepository, userID string, at time.Time) {
	t.Helper()
	ok, err := s.PlacePendingGuess(context.Background(), repository.PlaceParams{
		UserID:         userID,
		Direction:      models.DirectionUp,
		ReferenceValue: decimal.RequireFromString("100.25"),
		PlacedAt:       at,
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func testEnsureIsIdempotent(t *testing.T, s repository.GuessRepository) {
	ctx := context.Background()
	require.NoError(t, s.EnsureUserGuessState(ctx, "u1"))
	require.NoError(t, s.EnsureUserGuessState(ctx, "u1"))

	st, err := s.GetUserGuessState(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, int64(0), st.Score)
	assert.False(t, st.HasPending())
	assert.True(t, st.PendingConsistent())
}

func testGetMissing(t *testing.T, s repository.GuessRepository) {
	st, err := s.GetUserGuessState(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func testPlaceOnlyOnce(t *testing.T, s repository.GuessRepository) {
	ctx := context.Background()
	require.NoError(t, s.EnsureUserGuessState(ctx, "u1"))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	place(t, s, "u1", at)

	ok, err := s.PlacePendingGuess(ctx, repository.PlaceParams{
		UserID:         "u1",
		Direction:      models.DirectionDown,
		ReferenceValue: decimal.NewFromInt(1),
		PlacedAt:       at.Add(time.Second),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := s.GetUserGuessState(ctx, "u1")
	require.NoError(t, err)
	require.True(t, st.HasPending())
	assert.Equal(t, models.DirectionUp, *st.PendingDirection)
	assert.True(t, decimal.RequireFromString("100.25").Equal(*st.PendingReferenceValue))
	assert.True(t, at.Equal(*st.PendingPlacedAt))
	assert.Equal(t, int64(1), st.Version)
}

func testPlaceUnknownUser(t *testing.T, s repository.GuessRepository) {
	ok, err := s.PlacePendingGuess(context.Background(), repository.PlaceParams{
		UserID:         "ghost",
		Direction:      models.DirectionUp,
		ReferenceValue: decimal.NewFromInt(1),
		PlacedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func testSettleClearsAndScores(t *testing.T, s repository.GuessRepository) {
	ctx := context.Background()
	require.NoError(t, s.EnsureUserGuessState(ctx, "u1"))
	place(t, s, "u1", time.Now().UTC())

	ok, err := s.SettlePendingGuess(ctx, repository.SettleParams{
		UserID:          "u1",
		ExpectedVersion: 1,
		Score:           1,
		Settlement:      Settlement("u1", models.SettlementKindResolved, 1, 1),
	})
	require.NoError(t, err)
	require.True(t, ok)

	st, err := s.GetUserGuessState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Score)
	assert.False(t, st.HasPending())
	assert.True(t, st.PendingConsistent())
	assert.Equal(t, int64(2), st.Version)

	rows, err := s.ListGuessSettlements(ctx, repository.ListSettlementsParams{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SettlementKindResolved, rows[0].Kind)

	// Already cleared: a second settle is not applied.
	ok, err = s.SettlePendingGuess(ctx, repository.SettleParams{UserID: "u1", ExpectedVersion: 2, Score: 2})
	require.NoError(t, err)
	assert.False(t, ok)
}

func testSettleStaleVersion(t *testing.T, s repository.GuessRepository) {
	ctx := context.Background()
	require.NoError(t, s.EnsureUserGuessState(ctx, "u1"))
	place(t, s, "u1", time.Now().UTC())

	ok, err := s.SettlePendingGuess(ctx, repository.SettleParams{
		UserID:          "u1",
		ExpectedVersion: 0,
		Score:           -1,
		Settlement:      Settlement("u1", models.SettlementKindResolved, -1, -1),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := s.GetUserGuessState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.HasPending())
	assert.Equal(t, int64(0), st.Score)

	rows, err := s.ListGuessSettlements(ctx, repository.ListSettlementsParams{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testClearKeepsScore(t *testing.T, s repository.GuessRepository) {
	ctx := context.Background()
	require.NoError(t, s.EnsureUserGuessState(ctx, "u1"))
	place(t, s, "u1", time.Now().UTC())
	ok, err := s.SettlePendingGuess(ctx, repository.SettleParams{UserID: "u1", ExpectedVersion: 1, Score: 5})
	require.NoError(t, err)
	require.True(t, ok)
	place(t, s, "u1", time.Now().UTC())

	ok, err = s.ClearPendingGuess(ctx, repository.ClearParams{
		UserID:          "u1",
		ExpectedVersion: 3,
		Settlement:      Settlement("u1", models.SettlementKindExpired, 0, 5),
	})
	require.NoError(t, err)
	require.True(t, ok)

	st, err := s.GetUserGuessState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Score)
	assert.False(t, st.HasPending())
	assert.True(t, st.PendingConsistent())
}

func testListPending(t *testing.T, s repository.GuessRepository) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.EnsureUserGuessState(ctx, id))
		place(t, s, id, base.Add(time.Duration(i)*10*time.Minute))
	}
	require.NoError(t, s.EnsureUserGuessState(ctx, "idle"))

	all, err := s.ListPendingGuesses(ctx, repository.ListPendingParams{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].UserID)
	assert.Equal(t, "c", all[2].UserID)

	cut := base.Add(15 * time.Minute)
	early, err := s.ListPendingGuesses(ctx, repository.ListPendingParams{PlacedBefore: &cut})
	require.NoError(t, err)
	require.Len(t, early, 2)

	limited, err := s.ListPendingGuesses(ctx, repository.ListPendingParams{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a", limited[0].UserID)

	// The lower bound is inclusive and applies before the limit.
	from := base.Add(10 * time.Minute)
	recent, err := s.ListPendingGuesses(ctx, repository.ListPendingParams{PlacedAfter: &from, Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].UserID)

	window, err := s.ListPendingGuesses(ctx, repository.ListPendingParams{PlacedAfter: &from, PlacedBefore: &cut})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "b", window[0].UserID)
}

func testConcurrentPlace(t *testing.T, s repository.GuessRepository) {
	ctx := context.Background()
	require.NoError(t, s.EnsureUserGuessState(ctx, "u1"))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.PlacePendingGuess(ctx, repository.PlaceParams{
				UserID:         "u1",
				Direction:      models.DirectionDown,
				ReferenceValue: decimal.NewFromInt(int64(100 + i)),
				PlacedAt:       time.Now().UTC(),
			})
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	st, err := s.GetUserGuessState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, st.PendingConsistent())
	assert.Equal(t, int64(1), st.Version)
}
