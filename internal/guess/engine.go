// Package guess settles BTC up/down guesses: intake, the delayed resolver,
// and the overdue reconciler all write through conditioned repository calls.
package guess

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"bitpredict/internal/config"
	"bitpredict/internal/models"
	"bitpredict/internal/price"
	"bitpredict/internal/repository"
)

const (
	defaultSettlementDelay = 60 * time.Second
	defaultMaxAttempts     = 5
	defaultBackoffMin      = 250 * time.Millisecond
	defaultBackoffMax      = 5 * time.Second
	defaultSweepLimit      = 500
)

// Armer schedules a delayed resolve for a freshly placed guess.
type Armer interface {
	Arm(userID string, placedAt time.Time)
}

type Engine struct {
	Repo    repository.GuessRepository
	Prices  price.Source
	Timer   Armer
	Clock   Clock
	Config  config.GuessConfig
	Logger  *zap.Logger
	Metrics *Metrics
}

type Placement struct {
	Direction      Direction
	ReferenceValue decimal.Decimal
	PlacedAt       time.Time
	SettlesAt      time.Time
}

type PendingView struct {
	Direction      Direction
	ReferenceValue decimal.Decimal
	PlacedAt       time.Time
	SettlesAt      time.Time
}

type Status struct {
	Score   int64
	Pending *PendingView
}

// Enroll provisions the user's state row. Safe to call on every request.
func (e *Engine) Enroll(ctx context.Context, userID string) error {
	if e == nil || e.Repo == nil {
		return nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserNotFound
	}
	return e.Repo.EnsureUserGuessState(ctx, userID)
}

// PlaceGuess records a pending guess at the current reference value and arms
// the resolver. Nothing is written when the reference value is unavailable.
func (e *Engine) PlaceGuess(ctx context.Context, userID string, dir Direction) (Placement, error) {
	if !dir.Valid() {
		e.Metrics.incRejected("invalid_direction")
		return Placement{}, ErrInvalidDirection
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Placement{}, ErrUserNotFound
	}

	// The conditioned write below is authoritative; this read only saves a
	// gateway call for the common in-flight case.
	st, err := e.Repo.GetUserGuessState(ctx, userID)
	if err != nil {
		return Placement{}, err
	}
	if st == nil {
		e.Metrics.incRejected("user_not_found")
		return Placement{}, ErrUserNotFound
	}
	if st.HasPending() {
		e.Metrics.incRejected("in_flight")
		return Placement{}, ErrGuessInFlight
	}

	q, err := e.Prices.Current(ctx)
	if err != nil {
		e.Metrics.incRejected("reference_unavailable")
		e.logger().Warn("reference value fetch failed at placement", zap.String("user_id", userID), zap.Error(err))
		return Placement{}, wrapUnavailable(err)
	}

	placedAt := e.now().Truncate(time.Microsecond)
	applied, err := e.Repo.PlacePendingGuess(ctx, repository.PlaceParams{
		UserID:         userID,
		Direction:      string(dir),
		ReferenceValue: q.Value,
		PlacedAt:       placedAt,
	})
	if err != nil {
		return Placement{}, err
	}
	if !applied {
		cur, err := e.Repo.GetUserGuessState(ctx, userID)
		if err != nil {
			return Placement{}, err
		}
		if cur == nil {
			e.Metrics.incRejected("user_not_found")
			return Placement{}, ErrUserNotFound
		}
		e.Metrics.incRejected("in_flight")
		return Placement{}, ErrGuessInFlight
	}

	if e.Timer != nil {
		e.Timer.Arm(userID, placedAt)
	}
	e.Metrics.incPlaced()
	e.logger().Info("guess placed",
		zap.String("user_id", userID),
		zap.String("direction", string(dir)),
		zap.String("reference_value", q.Value.String()),
		zap.Time("placed_at", placedAt),
	)

	return Placement{
		Direction:      dir,
		ReferenceValue: q.Value,
		PlacedAt:       placedAt,
		SettlesAt:      placedAt.Add(e.delay()),
	}, nil
}

// Status reconciles the user's state and projects it for display.
func (e *Engine) Status(ctx context.Context, userID string) (Status, error) {
	st, err := e.Reconcile(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	out := Status{Score: st.Score}
	if st.HasPending() {
		placedAt := st.PendingPlacedAt.UTC()
		out.Pending = &PendingView{
			Direction:      Direction(*st.PendingDirection),
			ReferenceValue: *st.PendingReferenceValue,
			PlacedAt:       placedAt,
			SettlesAt:      placedAt.Add(e.delay()),
		}
	}
	return out, nil
}

// RearmPending schedules resolvers for guesses that are still within their
// delay, typically right after a restart. Overdue guesses are left to the
// reconciler.
func (e *Engine) RearmPending(ctx context.Context) (int, error) {
	if e == nil || e.Repo == nil || e.Timer == nil {
		return 0, nil
	}
	now := e.now()
	// Only guesses still inside their delay; overdue rows are the reconciler's.
	from := now.Add(-e.delay())
	rows, err := e.Repo.ListPendingGuesses(ctx, repository.ListPendingParams{
		PlacedAfter: &from,
		Limit:       e.sweepLimit(),
	})
	if err != nil {
		return 0, err
	}
	armed := 0
	for i := range rows {
		st := rows[i]
		if !st.HasPending() || e.overdue(*st.PendingPlacedAt, now, e.delay()) {
			continue
		}
		e.Timer.Arm(st.UserID, st.PendingPlacedAt.UTC())
		armed++
	}
	return armed, nil
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now().UTC()
}

func (e *Engine) delay() time.Duration {
	if e.Config.SettlementDelay > 0 {
		return e.Config.SettlementDelay
	}
	return defaultSettlementDelay
}

func (e *Engine) sweepLimit() int {
	if e.Config.SweepLimit > 0 {
		return e.Config.SweepLimit
	}
	return defaultSweepLimit
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// overdue is strict: exactly delay after placement is not yet overdue.
func (e *Engine) overdue(placedAt, now time.Time, threshold time.Duration) bool {
	return now.Sub(placedAt) > threshold
}

func newSettlement(st *models.UserGuessState, kind string, settledAt time.Time, details map[string]any) *models.GuessSettlement {
	raw, _ := json.Marshal(details)
	return &models.GuessSettlement{
		ID:             uuid.NewString(),
		UserID:         st.UserID,
		Kind:           kind,
		Direction:      *st.PendingDirection,
		ReferenceValue: *st.PendingReferenceValue,
		Outcome:        models.OutcomeNone,
		ScoreAfter:     st.Score,
		PlacedAt:       st.PendingPlacedAt.UTC(),
		SettledAt:      settledAt,
		Details:        datatypes.JSON(raw),
	}
}

// History returns the user's settlement audit rows, newest first.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]models.GuessSettlement, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserNotFound
	}
	return e.Repo.ListGuessSettlements(ctx, repository.ListSettlementsParams{UserID: userID, Limit: limit})
}
