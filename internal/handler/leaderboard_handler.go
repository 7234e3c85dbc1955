package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/service"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
	"github.com/noah-isme/sma-behavior-api/pkg/response"
)

type leaderboardService interface {
	GetLeaderboard(ctx context.Context, classID, rawWindow string) (*dto.Leaderboard, error)
}

type leaderboardExporter interface {
	ExportLeaderboard(ctx context.Context, classID string, query dto.ExportLeaderboardQuery) (*service.ExportFile, error)
}

// LeaderboardHandler serves class rankings.
type LeaderboardHandler struct {
	service  leaderboardService
	exporter leaderboardExporter
}

// NewLeaderboardHandler builds a new handler. exporter may be nil when exports are disabled.
func NewLeaderboardHandler(service leaderboardService, exporter leaderboardExporter) *LeaderboardHandler {
	return &LeaderboardHandler{service: service, exporter: exporter}
}

// Get godoc
// @Summary Class leaderboard
// @Description Ranks students by net points in the window. Ties keep roster order and take consecutive ranks.
// @Tags Leaderboard
// @Produce json
// @Param classId path string true "Class ID"
// @Param window query string false "week, month or all"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/leaderboard [get]
func (h *LeaderboardHandler) Get(c *gin.Context) {
	board, err := h.service.GetLeaderboard(c.Request.Context(), c.Param("classId"), c.Query("window"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}

// Export godoc
// @Summary Export class leaderboard
// @Tags Leaderboard
// @Produce text/csv
// @Produce application/pdf
// @Param classId path string true "Class ID"
// @Param window query string false "week, month or all"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /classes/{classId}/leaderboard/export [get]
func (h *LeaderboardHandler) Export(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	var query dto.ExportLeaderboardQuery
	if !bindQuery(c, &query, "invalid export query") {
		return
	}
	file, err := h.exporter.ExportLeaderboard(c.Request.Context(), c.Param("classId"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
