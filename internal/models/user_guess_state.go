package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
)

// UserGuessState is the one row per user the settlement engine owns.
// The three Pending* columns are written and cleared together in a single
// UPDATE; Version is bumped by every mutation and serves as the CAS token.
type UserGuessState struct {
	UserID string `gorm:"primaryKey;type:varchar(128)"`
	Score  int64  `gorm:"not null;default:0"`

	PendingDirection      *string          `gorm:"type:varchar(8);index"`
	PendingReferenceValue *decimal.Decimal `gorm:"type:numeric(30,10)"`
	PendingPlacedAt       *time.Time       `gorm:"index"`

	Version int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserGuessState) TableName() string {
	return "user_guess_states"
}

// HasPending reports whether a guess is outstanding. All three pending
// columns must be set; a partially populated row is treated as not pending.
func (s *UserGuessState) HasPending() bool {
	if s == nil {
		return false
	}
	return s.PendingDirection != nil && s.PendingReferenceValue != nil && s.PendingPlacedAt != nil
}

// PendingConsistent reports whether the pending columns are jointly present or jointly absent.
func (s *UserGuessState) PendingConsistent() bool {
	if s == nil {
		return true
	}
	set := 0
	if s.PendingDirection != nil {
		set++
	}
	if s.PendingReferenceValue != nil {
		set++
	}
	if s.PendingPlacedAt != nil {
		set++
	}
	return set == 0 || set == 3
}
