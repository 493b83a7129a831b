// Package memory is an in-process GuessRepository with the same conditioned
// write semantics as the SQL store. It backs tests and db.driver=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"bitpredict/internal/models"
	"bitpredict/internal/repository"
)

type Store struct {
	mu          sync.Mutex
	states      map[string]models.UserGuessState
	settlements []models.GuessSettlement
}

var _ repository.GuessRepository = (*Store)(nil)

func New() *Store {
	return &Store{states: map[string]models.UserGuessState{}}
}

func (s *Store) EnsureUserGuessState(ctx context.Context, userID string) error {
	_ = ctx
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[userID]; ok {
		return nil
	}
	s.states[userID] = models.UserGuessState{UserID: userID}
	return nil
}

func (s *Store) GetUserGuessState(ctx context.Context, userID string) (*models.UserGuessState, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[strings.TrimSpace(userID)]
	if !ok {
		return nil, nil
	}
	out := cloneState(st)
	return &out, nil
}

func (s *Store) PlacePendingGuess(ctx context.Context, params repository.PlaceParams) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[params.UserID]
	if !ok || st.PendingDirection != nil {
		return false, nil
	}
	dir := params.Direction
	ref := params.ReferenceValue
	at := params.PlacedAt.UTC()
	st.PendingDirection = &dir
	st.PendingReferenceValue = &ref
	st.PendingPlacedAt = &at
	st.Version++
	s.states[params.UserID] = st
	return true, nil
}

func (s *Store) SettlePendingGuess(ctx context.Context, params repository.SettleParams) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[params.UserID]
	if !ok || st.PendingDirection == nil || st.Version != params.ExpectedVersion {
		return false, nil
	}
	st.Score = params.Score
	s.clearLocked(st, params.Settlement)
	return true, nil
}

func (s *Store) ClearPendingGuess(ctx context.Context, params repository.ClearParams) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[params.UserID]
	if !ok || st.PendingDirection == nil || st.Version != params.ExpectedVersion {
		return false, nil
	}
	s.clearLocked(st, params.Settlement)
	return true, nil
}

func (s *Store) clearLocked(st models.UserGuessState, settlement *models.GuessSettlement) {
	st.PendingDirection = nil
	st.PendingReferenceValue = nil
	st.PendingPlacedAt = nil
	st.Version++
	s.states[st.UserID] = st
	if settlement != nil {
		s.settlements = append(s.settlements, *settlement)
	}
}

func (s *Store) ListPendingGuesses(ctx context.Context, params repository.ListPendingParams) ([]models.UserGuessState, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UserGuessState, 0)
	for _, st := range s.states {
		if st.PendingDirection == nil || st.PendingPlacedAt == nil {
			continue
		}
		if params.PlacedAfter != nil && st.PendingPlacedAt.Before(*params.PlacedAfter) {
			continue
		}
		if params.PlacedBefore != nil && !st.PendingPlacedAt.Before(*params.PlacedBefore) {
			continue
		}
		out = append(out, cloneState(st))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PendingPlacedAt.Before(*out[j].PendingPlacedAt)
	})
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) ListGuessSettlements(ctx context.Context, params repository.ListSettlementsParams) ([]models.GuessSettlement, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := strings.TrimSpace(params.UserID)
	out := make([]models.GuessSettlement, 0)
	for i := len(s.settlements) - 1; i >= 0; i-- {
		row := s.settlements[i]
		if userID != "" && row.UserID != userID {
			continue
		}
		out = append(out, row)
		if params.Limit > 0 && len(out) >= params.Limit {
			break
		}
	}
	return out, nil
}

func cloneState(st models.UserGuessState) models.UserGuessState {
	out := st
	if st.PendingDirection != nil {
		v := *st.PendingDirection
		out.PendingDirection = &v
	}
	if st.PendingReferenceValue != nil {
		v := *st.PendingReferenceValue
		out.PendingReferenceValue = &v
	}
	if st.PendingPlacedAt != nil {
		v := *st.PendingPlacedAt
		out.PendingPlacedAt = &v
	}
	return out
}
