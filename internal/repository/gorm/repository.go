package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitpredict/internal/models"
	"bitpredict/internal/repository"
)

// errNotApplied rolls back a conditioned write whose predicate matched no row.
var errNotApplied = errors.New("conditioned write not applied")

type Store struct {
	db *gorm.DB
}

var _ repository.GuessRepository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *Store) EnsureUserGuessState(ctx context.Context, userID string) error {
	if s == nil || s.db == nil {
		return nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.UserGuessState{UserID: userID}).Error
}

func (s *Store) GetUserGuessState(ctx context.Context, userID string) (*models.UserGuessState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	var item models.UserGuessState
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) PlacePendingGuess(ctx context.Context, params repository.PlaceParams) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.UserGuessState{}).
		Where("user_id = ?", params.UserID).
		Where("pending_direction IS NULL").
		Updates(map[string]any{
			"pending_direction":       params.Direction,
			"pending_reference_value": params.ReferenceValue,
			"pending_placed_at":       params.PlacedAt.UTC(),
			"version":                 gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) SettlePendingGuess(ctx context.Context, params repository.SettleParams) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	return s.clearPending(ctx, params.UserID, params.ExpectedVersion, map[string]any{
		"score": params.Score,
	}, params.Settlement)
}

func (s *Store) ClearPendingGuess(ctx context.Context, params repository.ClearParams) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	return s.clearPending(ctx, params.UserID, params.ExpectedVersion, nil, params.Settlement)
}

// clearPending nulls the three pending columns in one statement, guarded by
// version and by the row still being pending, then appends the audit row.
func (s *Store) clearPending(ctx context.Context, userID string, version int64, extra map[string]any, settlement *models.GuessSettlement) (bool, error) {
	updates := map[string]any{
		"pending_direction":       nil,
		"pending_reference_value": nil,
		"pending_placed_at":       nil,
		"version":                 gorm.Expr("version + 1"),
	}
	for k, v := range extra {
		updates[k] = v
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserGuessState{}).
			Where("user_id = ?", userID).
			Where("version = ?", version).
			Where("pending_direction IS NOT NULL").
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNotApplied
		}
		if settlement == nil {
			return nil
		}
		return tx.Create(settlement).Error
	})
	if errors.Is(err, errNotApplied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListPendingGuesses(ctx context.Context, params repository.ListPendingParams) ([]models.UserGuessState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.UserGuessState{}).
		Where("pending_direction IS NOT NULL")
	if params.PlacedAfter != nil && !params.PlacedAfter.IsZero() {
		query = query.Where("pending_placed_at >= ?", params.PlacedAfter.UTC())
	}
	if params.PlacedBefore != nil && !params.PlacedBefore.IsZero() {
		query = query.Where("pending_placed_at < ?", params.PlacedBefore.UTC())
	}
	var items []models.UserGuessState
	if err := query.
		Order("pending_placed_at asc").
		Limit(normalizeLimit(params.Limit, 500)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListGuessSettlements(ctx context.Context, params repository.ListSettlementsParams) ([]models.GuessSettlement, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.GuessSettlement{})
	if userID := strings.TrimSpace(params.UserID); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	var items []models.GuessSettlement
	if err := query.
		Order("settled_at desc").
		Limit(normalizeLimit(params.Limit, 50)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
