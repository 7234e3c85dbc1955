package gamification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

func TestRedeemScenario(t *testing.T) {
	reward := models.Reward{ID: "r1", PointCost: 10, IsActive: true}

	debit, err := Redeem(13, reward)
	require.NoError(t, err)
	assert.Equal(t, Debit{PointsDeducted: 10, NewBalance: 3}, debit)

	_, err = Redeem(debit.NewBalance, reward)
	var insufficient *InsufficientPointsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 7, insufficient.Needed())
	assert.Equal(t, "insufficient points: 7 more needed", err.Error())
}

func TestRedeemNeverGoesNegative(t *testing.T) {
	costs := []int{4, 7, 1, 12, 3, 3, 9, 2}
	balance := 20
	for _, cost := range costs {
		debit, err := Redeem(balance, models.Reward{PointCost: cost, IsActive: true})
		if err != nil {
			continue
		}
		balance = debit.NewBalance
		assert.GreaterOrEqual(t, balance, 0)
	}
	assert.GreaterOrEqual(t, balance, 0)
}

func TestRedeemRejectsUnavailableRewards(t *testing.T) {
	_, err := Redeem(100, models.Reward{PointCost: 10, IsActive: false})
	assert.ErrorIs(t, err, ErrRewardUnavailable)
	_, err = Redeem(100, models.Reward{PointCost: 0, IsActive: true})
	assert.ErrorIs(t, err, ErrRewardUnavailable)
}

// Three +5 events and one -2 event: 13 points, badge at 10 earned once, then
// a 10-point reward leaves 3.
func TestLedgerEndToEnd(t *testing.T) {
	events := []models.BehaviorEvent{
		event("s1", 5, daysAgo(0)),
		event("s1", 5, daysAgo(0)),
		event("s1", 5, daysAgo(0)),
		event("s1", -2, daysAgo(0)),
	}
	totals := ComputeTotals(events, Range{}, DefaultPolicy(), baseTime)
	assert.Equal(t, 13, totals.Total)
	assert.Equal(t, 3, totals.GoodCount)
	assert.Equal(t, 1, totals.BadCount)

	badges := []models.Badge{{ID: "b10", RequirementType: models.RequirementPointsThreshold, RequirementValue: 10}}
	eligible := Evaluate(totals, badges, nil)
	require.Equal(t, []string{"b10"}, eligible)
	assert.Empty(t, Evaluate(totals, badges, []models.StudentBadge{{StudentID: "s1", BadgeID: "b10"}}))

	debit, err := Redeem(Balance(totals.Total, 0), models.Reward{PointCost: 10, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, 3, debit.NewBalance)
}
