package gamification

import (
	"errors"
	"fmt"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// ErrRewardUnavailable is returned for inactive or mispriced rewards.
var ErrRewardUnavailable = errors.New("reward is not available for redemption")

// InsufficientPointsError reports how far a balance is from a reward's cost.
type InsufficientPointsError struct {
	Balance int
	Cost    int
}

// Needed is the number of additional points required.
func (e *InsufficientPointsError) Needed() int {
	return e.Cost - e.Balance
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: %d more needed", e.Needed())
}

// Debit is the outcome of an accepted redemption.
type Debit struct {
	PointsDeducted int
	NewBalance     int
}

// Redeem checks balance against reward and returns the debit to apply. The
// resulting balance is never negative.
func Redeem(balance int, reward models.Reward) (Debit, error) {
	if !reward.IsActive || reward.PointCost <= 0 {
		return Debit{}, ErrRewardUnavailable
	}
	if balance < reward.PointCost {
		return Debit{}, &InsufficientPointsError{Balance: balance, Cost: reward.PointCost}
	}
	return Debit{PointsDeducted: reward.PointCost, NewBalance: balance - reward.PointCost}, nil
}
