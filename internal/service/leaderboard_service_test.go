package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

func TestLeaderboardTrendsAgainstLastDifferentRanking(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.ledger.addStudent("a", "7A", "Ana", "")
	e.ledger.addStudent("b", "7A", "Budi", "")
	e.ledger.addEvent("a", "7A", 10, engineNow.Add(-time.Hour))
	e.ledger.addEvent("b", "7A", 5, engineNow.Add(-time.Hour))

	first, err := e.leaderboard.GetLeaderboard(ctx, "7A", "all")
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.Equal(t, "a", first.Entries[0].StudentID)
	assert.Equal(t, models.TrendUp, first.Entries[0].Trend)

	e.ledger.addEvent("b", "7A", 20, engineNow.Add(-time.Minute))
	second, err := e.leaderboard.GetLeaderboard(ctx, "7A", "all")
	require.NoError(t, err)
	assert.Equal(t, "b", second.Entries[0].StudentID)
	assert.Equal(t, models.TrendUp, second.Entries[0].Trend)
	assert.Equal(t, "a", second.Entries[1].StudentID)
	assert.Equal(t, models.TrendDown, second.Entries[1].Trend)
	require.NotNil(t, second.Entries[1].PreviousRank)
	assert.Equal(t, 1, *second.Entries[1].PreviousRank)

	third, err := e.leaderboard.GetLeaderboard(ctx, "7A", "all")
	require.NoError(t, err)
	assert.Equal(t, models.TrendUp, third.Entries[0].Trend)
	assert.Equal(t, models.TrendDown, third.Entries[1].Trend)
	assert.Len(t, e.ledger.generations, 2)
}

func TestLeaderboardWindowExcludesOlderEvents(t *testing.T) {
	e := newEngine(t)
	e.ledger.addStudent("a", "7A", "Ana", "")
	e.ledger.addStudent("b", "7A", "Budi", "")
	e.ledger.addEvent("a", "7A", 50, engineNow.AddDate(0, 0, -10))
	e.ledger.addEvent("b", "7A", 3, engineNow.Add(-time.Hour))

	board, err := e.leaderboard.GetLeaderboard(context.Background(), "7A", "")
	require.NoError(t, err)
	assert.Equal(t, "week", board.Window)
	require.NotNil(t, board.From)
	assert.Equal(t, "b", board.Entries[0].StudentID)
	assert.Equal(t, 0, board.Entries[1].TotalPoints)
}

func TestLeaderboardTiesKeepRosterOrder(t *testing.T) {
	e := newEngine(t)
	e.ledger.addStudent("z", "7A", "Citra", "")
	e.ledger.addStudent("y", "7A", "Ana", "")
	e.ledger.addEvent("z", "7A", 4, engineNow)
	e.ledger.addEvent("y", "7A", 4, engineNow)

	board, err := e.leaderboard.GetLeaderboard(context.Background(), "7A", "today")
	require.NoError(t, err)
	assert.Equal(t, "y", board.Entries[0].StudentID)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, 2, board.Entries[1].Rank)
}

func TestLeaderboardRejectsUnknownWindow(t *testing.T) {
	e := newEngine(t)
	_, err := e.leaderboard.GetLeaderboard(context.Background(), "7A", "decade")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	board, err := e.leaderboard.GetLeaderboard(context.Background(), "empty", "month")
	require.NoError(t, err)
	assert.Empty(t, board.Entries)
}

type ctxAwareEvents struct{ memEvents }

func (s ctxAwareEvents) ListAll(ctx context.Context, f models.BehaviorEventFilter) ([]models.BehaviorEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.memEvents.ListAll(ctx, f)
}

func TestLeaderboardSharedComputationIgnoresCallerCancellation(t *testing.T) {
	e := newEngine(t)
	e.ledger.addStudent("a", "7A", "Ana", "")
	e.ledger.addEvent("a", "7A", 4, engineNow.Add(-time.Hour))
	svc := NewLeaderboardService(memStudents{e.ledger}, ctxAwareEvents{memEvents{e.ledger}}, memGenerations{e.ledger}, nil, e.leaderboard.policy, nil)
	svc.now = func() time.Time { return engineNow }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	board, err := svc.GetLeaderboard(ctx, "7A", "all")
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, 4, board.Entries[0].TotalPoints)
}
