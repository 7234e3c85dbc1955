package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	"github.com/noah-isme/sma-behavior-api/pkg/response"
)

type behaviorService interface {
	LogBehavior(ctx context.Context, teacherID string, req dto.LogBehaviorRequest) (*dto.LogBehaviorResponse, error)
	DeleteBehavior(ctx context.Context, id string) error
	List(ctx context.Context, req dto.BehaviorListRequest) ([]models.BehaviorEvent, *models.Pagination, error)
}

// BehaviorHandler exposes the behaviour ledger.
type BehaviorHandler struct {
	service behaviorService
}

// NewBehaviorHandler builds a new handler.
func NewBehaviorHandler(service behaviorService) *BehaviorHandler {
	return &BehaviorHandler{service: service}
}

// Log godoc
// @Summary Log a behaviour event
// @Description Appends an event, refreshes the student's totals and awards any badges now earned.
// @Tags Behavior
// @Accept json
// @Produce json
// @Param payload body dto.LogBehaviorRequest true "Behaviour event"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /behaviors [post]
func (h *BehaviorHandler) Log(c *gin.Context) {
	teacherID, ok := actorID(c)
	if !ok {
		return
	}
	var req dto.LogBehaviorRequest
	if !bindJSON(c, &req, "invalid behavior payload") {
		return
	}
	result, err := h.service.LogBehavior(c.Request.Context(), teacherID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List behaviour history
// @Tags Behavior
// @Produce json
// @Param studentId query string false "Student ID"
// @Param classId query string false "Class ID"
// @Param categoryId query string false "Category ID"
// @Param dateFrom query string false "Inclusive start date (YYYY-MM-DD)"
// @Param dateTo query string false "Inclusive end date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /behaviors [get]
func (h *BehaviorHandler) List(c *gin.Context) {
	var req dto.BehaviorListRequest
	if !bindQuery(c, &req, "invalid behavior filter") {
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Delete godoc
// @Summary Delete a behaviour event
// @Tags Behavior
// @Param id path string true "Event ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /behaviors/{id} [delete]
func (h *BehaviorHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteBehavior(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
