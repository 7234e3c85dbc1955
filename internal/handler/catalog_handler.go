package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
	"github.com/noah-isme/sma-behavior-api/pkg/response"
)

type badgeCatalogService interface {
	Create(ctx context.Context, req dto.CreateBadgeRequest) (*models.Badge, error)
	ListCatalog(ctx context.Context, classID string) ([]models.Badge, error)
}

type rewardCatalogService interface {
	Create(ctx context.Context, req dto.CreateRewardRequest) (*models.Reward, error)
	ListCatalog(ctx context.Context, classID string, activeOnly bool) ([]models.Reward, error)
}

// CatalogHandler manages the badge and reward catalogs of a class.
type CatalogHandler struct {
	badges  badgeCatalogService
	rewards rewardCatalogService
}

// NewCatalogHandler builds a new handler.
func NewCatalogHandler(badges badgeCatalogService, rewards rewardCatalogService) *CatalogHandler {
	return &CatalogHandler{badges: badges, rewards: rewards}
}

// ListBadges godoc
// @Summary List the badge catalog of a class
// @Tags Catalog
// @Produce json
// @Param classId query string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /badges [get]
func (h *CatalogHandler) ListBadges(c *gin.Context) {
	items, err := h.badges.ListCatalog(c.Request.Context(), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateBadge godoc
// @Summary Create a badge
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateBadgeRequest true "Badge"
// @Success 201 {object} response.Envelope
// @Router /badges [post]
func (h *CatalogHandler) CreateBadge(c *gin.Context) {
	var req dto.CreateBadgeRequest
	if !bindJSON(c, &req, "invalid badge payload") {
		return
	}
	badge, err := h.badges.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, badge)
}

// ListRewards godoc
// @Summary List the reward catalog of a class
// @Tags Catalog
// @Produce json
// @Param classId query string true "Class ID"
// @Param activeOnly query bool false "Only active rewards"
// @Success 200 {object} response.Envelope
// @Router /rewards [get]
func (h *CatalogHandler) ListRewards(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("activeOnly"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "activeOnly must be a boolean"))
			return
		}
		activeOnly = parsed
	}
	items, err := h.rewards.ListCatalog(c.Request.Context(), c.Query("classId"), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateReward godoc
// @Summary Create a reward
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body dto.CreateRewardRequest true "Reward"
// @Success 201 {object} response.Envelope
// @Router /rewards [post]
func (h *CatalogHandler) CreateReward(c *gin.Context) {
	var req dto.CreateRewardRequest
	if !bindJSON(c, &req, "invalid reward payload") {
		return
	}
	reward, err := h.rewards.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reward)
}
