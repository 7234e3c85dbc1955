package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
	"github.com/noah-isme/sma-behavior-api/pkg/export"
)

type leaderboardReader interface {
	GetLeaderboard(ctx context.Context, classID, window string) (*dto.Leaderboard, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders leaderboards as CSV or PDF documents.
type ExportService struct {
	leaderboards leaderboardReader
	logger       *zap.Logger
}

var leaderboardHeaders = []string{"Rank", "Student", "Points", "Good", "Bad", "Previous Rank", "Trend"}

// NewExportService constructs the service.
func NewExportService(leaderboards leaderboardReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{leaderboards: leaderboards, logger: logger}
}

// ExportLeaderboard renders the class leaderboard for window in format.
func (s *ExportService) ExportLeaderboard(ctx context.Context, classID string, query dto.ExportLeaderboardQuery) (*ExportFile, error) {
	renderer, err := export.ForFormat(query.Format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	board, err := s.leaderboards.GetLeaderboard(ctx, classID, query.Window)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Leaderboard %s (%s)", board.ClassID, board.Window)
	data, err := renderer.Render(leaderboardDataset(board.Entries), title)
	if err != nil {
		s.logger.Error("leaderboard export failed", zap.String("class_id", classID), zap.Error(err))
		return nil, internalError(err, "failed to render export")
	}
	return &ExportFile{
		Filename:    export.Filename(fmt.Sprintf("leaderboard_%s_%s", board.ClassID, board.Window), renderer),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func leaderboardDataset(entries []models.LeaderboardEntry) export.Dataset {
	rows := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		previous := "-"
		if e.PreviousRank != nil {
			previous = strconv.Itoa(*e.PreviousRank)
		}
		rows = append(rows, map[string]string{
			"Rank":          strconv.Itoa(e.Rank),
			"Student":       e.StudentName,
			"Points":        strconv.Itoa(e.TotalPoints),
			"Good":          strconv.Itoa(e.GoodBehaviors),
			"Bad":           strconv.Itoa(e.BadBehaviors),
			"Previous Rank": previous,
			"Trend":         string(e.Trend),
		})
	}
	return export.Dataset{Headers: leaderboardHeaders, Rows: rows}
}
