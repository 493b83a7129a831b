package guess

import (
	"strings"

	"github.com/shopspring/decimal"

	"bitpredict/internal/models"
)

type Direction string

const (
	Up   Direction = models.DirectionUp
	Down Direction = models.DirectionDown
)

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(Up):
		return Up, nil
	case string(Down):
		return Down, nil
	default:
		return "", ErrInvalidDirection
	}
}

func (d Direction) Valid() bool {
	return d == Up || d == Down
}

// Wire is the lower-case form used on the HTTP surface.
func (d Direction) Wire() string {
	return strings.ToLower(string(d))
}

type Outcome string

const (
	Correct   Outcome = models.OutcomeCorrect
	Incorrect Outcome = models.OutcomeIncorrect
)

// Evaluate scores a guess. A settlement value equal to the placement value is
// incorrect for both directions.
func Evaluate(dir Direction, placed, settled decimal.Decimal) Outcome {
	switch {
	case dir == Up && settled.GreaterThan(placed):
		return Correct
	case dir == Down && settled.LessThan(placed):
		return Correct
	default:
		return Incorrect
	}
}

func (o Outcome) ScoreDelta() int64 {
	if o == Correct {
		return 1
	}
	return -1
}
