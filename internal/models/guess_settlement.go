package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SettlementKindResolved = "resolved"
	SettlementKindExpired  = "expired"

	OutcomeCorrect   = "correct"
	OutcomeIncorrect = "incorrect"
	OutcomeNone      = "none"
)

// GuessSettlement is an append-only audit row written in the same transaction
// that clears a pending guess, whether it was scored or expired by recovery.
type GuessSettlement struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	UserID string `gorm:"type:varchar(128);not null;index"`
	Kind   string `gorm:"type:varchar(16);not null;index"`

	Direction      string           `gorm:"type:varchar(8);not null"`
	ReferenceValue decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	SettledValue   *decimal.Decimal `gorm:"type:numeric(30,10)"`
	Outcome        string           `gorm:"type:varchar(16);not null"`
	ScoreDelta     int64            `gorm:"not null;default:0"`
	ScoreAfter     int64            `gorm:"not null;default:0"`

	PlacedAt  time.Time `gorm:"not null"`
	SettledAt time.Time `gorm:"not null;index"`

	Details datatypes.JSON

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (GuessSettlement) TableName() string {
	return "guess_settlements"
}
