package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	"github.com/noah-isme/sma-behavior-api/pkg/response"
)

type progressService interface {
	GetTotals(ctx context.Context, studentID, classID string) (*dto.StudentTotals, error)
	GetStreak(ctx context.Context, studentID, classID string) (*dto.StudentStreak, error)
}

type studentBadgeService interface {
	ListStudentBadges(ctx context.Context, studentID string) ([]models.StudentBadgeDetail, error)
	GetEligibleBadges(ctx context.Context, studentID string) ([]models.Badge, error)
	AwardBadge(ctx context.Context, studentID, badgeID, awardedBy string) (*dto.AwardBadgeResponse, error)
}

type studentRewardService interface {
	ListAffordable(ctx context.Context, studentID string) ([]models.Reward, error)
	ListRedemptions(ctx context.Context, studentID string) ([]models.StudentReward, error)
	RedeemReward(ctx context.Context, studentID string, req dto.RedeemRewardRequest) (*dto.RedemptionResponse, error)
}

// StudentProgressHandler exposes the per-student gamification views.
type StudentProgressHandler struct {
	progress progressService
	badges   studentBadgeService
	rewards  studentRewardService
}

// NewStudentProgressHandler builds a new handler.
func NewStudentProgressHandler(progress progressService, badges studentBadgeService, rewards studentRewardService) *StudentProgressHandler {
	return &StudentProgressHandler{progress: progress, badges: badges, rewards: rewards}
}

// Totals godoc
// @Summary Student point totals
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param classId query string false "Class ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/totals [get]
func (h *StudentProgressHandler) Totals(c *gin.Context) {
	totals, err := h.progress.GetTotals(c.Request.Context(), c.Param("id"), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, totals, nil)
}

// Streak godoc
// @Summary Student positive-behaviour streak
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param classId query string false "Class ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/streak [get]
func (h *StudentProgressHandler) Streak(c *gin.Context) {
	streak, err := h.progress.GetStreak(c.Request.Context(), c.Param("id"), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, streak, nil)
}

// Badges godoc
// @Summary Badges earned by a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/badges [get]
func (h *StudentProgressHandler) Badges(c *gin.Context) {
	items, err := h.badges.ListStudentBadges(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// EligibleBadges godoc
// @Summary Badges a student qualifies for but does not hold
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/badges/eligible [get]
func (h *StudentProgressHandler) EligibleBadges(c *gin.Context) {
	items, err := h.badges.GetEligibleBadges(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// AwardBadge godoc
// @Summary Award a badge manually
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.AwardBadgeRequest true "Badge"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "already held"
// @Router /students/{id}/badges [post]
func (h *StudentProgressHandler) AwardBadge(c *gin.Context) {
	awardedBy, ok := actorID(c)
	if !ok {
		return
	}
	var req dto.AwardBadgeRequest
	if !bindJSON(c, &req, "invalid award payload") {
		return
	}
	result, err := h.badges.AwardBadge(c.Request.Context(), c.Param("id"), req.BadgeID, awardedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Outcome(c, result.Created, result)
}

// AffordableRewards godoc
// @Summary Active rewards the student's balance covers
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/rewards/affordable [get]
func (h *StudentProgressHandler) AffordableRewards(c *gin.Context) {
	items, err := h.rewards.ListAffordable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Redemptions godoc
// @Summary Redemption history of a student
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/redemptions [get]
func (h *StudentProgressHandler) Redemptions(c *gin.Context) {
	items, err := h.rewards.ListRedemptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Redeem godoc
// @Summary Redeem a reward
// @Description Idempotent on requestId. A replay returns the original redemption with replayed=true.
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.RedeemRewardRequest true "Redemption"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "replayed"
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/redemptions [post]
func (h *StudentProgressHandler) Redeem(c *gin.Context) {
	var req dto.RedeemRewardRequest
	if !bindJSON(c, &req, "invalid redemption payload") {
		return
	}
	result, err := h.rewards.RedeemReward(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Outcome(c, !result.Replayed, result)
}
