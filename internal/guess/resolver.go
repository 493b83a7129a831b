package guess

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bitpredict/internal/backoff"
	"bitpredict/internal/models"
	"bitpredict/internal/price"
	"bitpredict/internal/repository"
)

type ResolutionStatus string

const (
	StatusResolved ResolutionStatus = "resolved"
	// StatusNoOp means there was nothing to settle, or another writer settled first.
	StatusNoOp ResolutionStatus = "noop"
	// StatusNotDue means the pending guess is younger than the settlement delay.
	StatusNotDue ResolutionStatus = "not_due"
)

type Resolution struct {
	Status       ResolutionStatus
	Outcome      Outcome
	Score        int64
	SettledValue decimal.Decimal
	PlacedAt     time.Time
	Attempts     int
}

// Resolve settles the user's pending guess against the current reference
// value. Running it twice for the same guess scores it once.
func (e *Engine) Resolve(ctx context.Context, userID string) (Resolution, error) {
	userID = strings.TrimSpace(userID)
	st, err := e.Repo.GetUserGuessState(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}
	if st == nil {
		return Resolution{}, ErrUserNotFound
	}
	if !st.HasPending() {
		e.Metrics.incNoop("no_pending")
		return Resolution{Status: StatusNoOp, Score: st.Score}, nil
	}

	placedAt := st.PendingPlacedAt.UTC()
	dueAt := placedAt.Add(e.delay())
	if e.now().Before(dueAt) {
		e.Metrics.incNoop("not_due")
		return Resolution{Status: StatusNotDue, Score: st.Score, PlacedAt: placedAt}, nil
	}

	q, attempts, err := e.fetchWithRetry(ctx, userID)
	if err != nil {
		e.logger().Warn("settlement fetch exhausted; guess left pending",
			zap.String("user_id", userID),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		return Resolution{Attempts: attempts}, wrapUnavailable(err)
	}

	dir := Direction(*st.PendingDirection)
	outcome := Evaluate(dir, *st.PendingReferenceValue, q.Value)
	delta := outcome.ScoreDelta()
	score := st.Score + delta
	settledAt := e.now()

	settlement := newSettlement(st, models.SettlementKindResolved, settledAt, map[string]any{
		"source":      q.Source,
		"observed_at": q.ObservedAt,
		"attempts":    attempts,
		"lateness_ms": settledAt.Sub(dueAt).Milliseconds(),
	})
	settled := q.Value
	settlement.SettledValue = &settled
	settlement.Outcome = string(outcome)
	settlement.ScoreDelta = delta
	settlement.ScoreAfter = score

	applied, err := e.Repo.SettlePendingGuess(ctx, repository.SettleParams{
		UserID:          userID,
		ExpectedVersion: st.Version,
		Score:           score,
		Settlement:      settlement,
	})
	if err != nil {
		return Resolution{}, err
	}
	if !applied {
		e.Metrics.incNoop("lost_race")
		e.logger().Debug("guess already settled elsewhere", zap.String("user_id", userID))
		return Resolution{Status: StatusNoOp, PlacedAt: placedAt, Attempts: attempts}, nil
	}

	e.Metrics.incSettled(outcome)
	e.logger().Info("guess settled",
		zap.String("user_id", userID),
		zap.String("direction", string(dir)),
		zap.String("outcome", string(outcome)),
		zap.Int64("score", score),
		zap.String("reference_value", st.PendingReferenceValue.String()),
		zap.String("settled_value", q.Value.String()),
	)
	return Resolution{
		Status:       StatusResolved,
		Outcome:      outcome,
		Score:        score,
		SettledValue: q.Value,
		PlacedAt:     placedAt,
		Attempts:     attempts,
	}, nil
}

func (e *Engine) fetchWithRetry(ctx context.Context, userID string) (price.Quote, int, error) {
	maxAttempts := e.Config.ResolveMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	wait := e.Config.ResolveBackoffMin
	if wait <= 0 {
		wait = defaultBackoffMin
	}
	maxBackoff := e.Config.ResolveBackoffMax
	if maxBackoff <= 0 {
		maxBackoff = defaultBackoffMax
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		q, err := e.Prices.Current(ctx)
		if err == nil {
			return q, attempt, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			return price.Quote{}, attempt, lastErr
		}
		e.Metrics.incFetchRetry()
		e.logger().Debug("settlement fetch failed; retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if err := backoff.Sleep(ctx, wait); err != nil {
			return price.Quote{}, attempt, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
		wait = backoff.Next(wait, maxBackoff)
	}
	return price.Quote{}, maxAttempts, lastErr
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrReferenceUnavailable, err)
}
