package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

func TestExportLeaderboardCSV(t *testing.T) {
	e := newEngine(t)
	e.ledger.addStudent("a", "7A", "Ana", "")
	e.ledger.addStudent("b", "7A", "Budi", "")
	e.ledger.addEvent("b", "7A", 7, engineNow.Add(-time.Hour))
	svc := NewExportService(e.leaderboard, nil)

	file, err := svc.ExportLeaderboard(context.Background(), "7A", dto.ExportLeaderboardQuery{Window: "week", Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "leaderboard_7A_week.csv", file.Filename)
	assert.Contains(t, file.ContentType, "text/csv")

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Rank,Student,Points,Good,Bad,Previous Rank,Trend", strings.TrimSpace(lines[0]))
	assert.True(t, strings.HasPrefix(lines[1], "1,Budi,7,1,0,-,up"))
}

func TestExportLeaderboardPDFAndErrors(t *testing.T) {
	e := newEngine(t)
	e.ledger.addStudent("a", "7A", "Ana", "")
	svc := NewExportService(e.leaderboard, nil)

	file, err := svc.ExportLeaderboard(context.Background(), "7A", dto.ExportLeaderboardQuery{Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))

	_, err = svc.ExportLeaderboard(context.Background(), "7A", dto.ExportLeaderboardQuery{Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.ExportLeaderboard(context.Background(), "7A", dto.ExportLeaderboardQuery{Window: "decade"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
