package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"bitpredict/internal/models"
)

// GuessRepository is the Guess Record Store contract. PlacePendingGuess,
// SettlePendingGuess and ClearPendingGuess are conditioned writes: each reports
// applied=false instead of an error when its precondition no longer holds.
type GuessRepository interface {
	EnsureUserGuessState(ctx context.Context, userID string) error
	GetUserGuessState(ctx context.Context, userID string) (*models.UserGuessState, error)

	// PlacePendingGuess sets the pending columns only if none are set.
	PlacePendingGuess(ctx context.Context, params PlaceParams) (bool, error)
	// SettlePendingGuess sets score and clears the pending columns if the row is
	// still pending at ExpectedVersion. The audit row is written in the same transaction.
	SettlePendingGuess(ctx context.Context, params SettleParams) (bool, error)
	// ClearPendingGuess clears the pending columns at ExpectedVersion, score untouched.
	ClearPendingGuess(ctx context.Context, params ClearParams) (bool, error)

	ListPendingGuesses(ctx context.Context, params ListPendingParams) ([]models.UserGuessState, error)
	ListGuessSettlements(ctx context.Context, params ListSettlementsParams) ([]models.GuessSettlement, error)
}

type PlaceParams struct {
	UserID         string
	Direction      string
	ReferenceValue decimal.Decimal
	PlacedAt       time.Time
}

type SettleParams struct {
	UserID          string
	ExpectedVersion int64
	Score           int64
	Settlement      *models.GuessSettlement
}

type ClearParams struct {
	UserID          string
	ExpectedVersion int64
	Settlement      *models.GuessSettlement
}

// ListPendingParams bounds are PlacedAfter <= placed_at < PlacedBefore.
type ListPendingParams struct {
	PlacedAfter  *time.Time
	PlacedBefore *time.Time
	Limit        int
}

type ListSettlementsParams struct {
	UserID string
	Limit  int
}
