package guess

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"bitpredict/internal/models"
	"bitpredict/internal/repository"
)

const (
	pathRead  = "read"
	pathSweep = "sweep"
)

// Reconcile clears a guess that outlived its delay without being settled.
// The score is not changed. Returns the state after reconciliation.
func (e *Engine) Reconcile(ctx context.Context, userID string) (*models.UserGuessState, error) {
	userID = strings.TrimSpace(userID)
	st, err := e.Repo.GetUserGuessState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrUserNotFound
	}
	if !st.HasPending() {
		return st, nil
	}
	applied, err := e.expireIfOverdue(ctx, st, e.delay(), pathRead)
	if err != nil {
		return nil, err
	}
	if !applied && !e.overdue(st.PendingPlacedAt.UTC(), e.now(), e.delay()) {
		return st, nil
	}
	cur, err := e.Repo.GetUserGuessState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrUserNotFound
	}
	return cur, nil
}

// SweepOverdue expires guesses overdue by more than delay plus the sweep
// grace, for users who never come back to read their status.
func (e *Engine) SweepOverdue(ctx context.Context) (int, error) {
	if e == nil || e.Repo == nil {
		return 0, nil
	}
	threshold := e.delay() + e.Config.SweepGrace
	cutoff := e.now().Add(-threshold)
	rows, err := e.Repo.ListPendingGuesses(ctx, repository.ListPendingParams{
		PlacedBefore: &cutoff,
		Limit:        e.sweepLimit(),
	})
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		st := rows[i]
		ok, err := e.expireIfOverdue(ctx, &st, threshold, pathSweep)
		if err != nil {
			e.logger().Warn("sweep expire failed", zap.String("user_id", st.UserID), zap.Error(err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

// expireIfOverdue reports whether this call cleared the guess.
func (e *Engine) expireIfOverdue(ctx context.Context, st *models.UserGuessState, threshold time.Duration, path string) (bool, error) {
	if !st.HasPending() {
		return false, nil
	}
	now := e.now()
	placedAt := st.PendingPlacedAt.UTC()
	if !e.overdue(placedAt, now, threshold) {
		return false, nil
	}
	settlement := newSettlement(st, models.SettlementKindExpired, now, map[string]any{
		"path":       path,
		"overdue_ms": now.Sub(placedAt.Add(e.delay())).Milliseconds(),
	})
	applied, err := e.Repo.ClearPendingGuess(ctx, repository.ClearParams{
		UserID:          st.UserID,
		ExpectedVersion: st.Version,
		Settlement:      settlement,
	})
	if err != nil {
		return false, err
	}
	if !applied {
		e.Metrics.incNoop("lost_race")
		return false, nil
	}
	e.Metrics.incExpired(path)
	e.logger().Info("overdue guess expired without scoring",
		zap.String("user_id", st.UserID),
		zap.String("direction", *st.PendingDirection),
		zap.String("path", path),
		zap.Time("placed_at", placedAt),
		zap.Int64("score", st.Score),
	)
	return true, nil
}
