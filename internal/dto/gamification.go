package dto

import (
	"time"

	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// StudentTotals is the points view of a student within a class.
type StudentTotals struct {
	StudentID string `json:"studentId"`
	ClassID   string `json:"classId"`
	gamification.Totals
	SpentPoints int       `json:"spentPoints"`
	Balance     int       `json:"balance"`
	Rank        *int      `json:"rank,omitempty"`
	WindowMode  string    `json:"windowMode"`
	ComputedAt  time.Time `json:"computedAt"`
}

// StudentStreak is the streak view of a student within a class.
type StudentStreak struct {
	StudentID string `json:"studentId"`
	ClassID   string `json:"classId"`
	gamification.Streak
}

// LeaderboardQuery selects the ranking window.
type LeaderboardQuery struct {
	Window string `form:"window" validate:"omitempty,time_window"`
}

// Leaderboard is a ranked class view for one window.
type Leaderboard struct {
	ClassID     string                    `json:"classId"`
	Window      string                    `json:"window"`
	WindowMode  string                    `json:"windowMode"`
	From        *time.Time                `json:"from,omitempty"`
	GeneratedAt time.Time                 `json:"generatedAt"`
	Entries     []models.LeaderboardEntry `json:"entries"`
}

// CreateBadgeRequest defines a badge in a class catalog.
type CreateBadgeRequest struct {
	ClassID          string `json:"classId" validate:"required"`
	Name             string `json:"name" validate:"required,max=100"`
	Description      string `json:"description" validate:"omitempty,max=500"`
	Icon             string `json:"icon" validate:"omitempty,max=50"`
	RequirementType  string `json:"requirementType" validate:"required,oneof=points_threshold behavior_count achievement"`
	RequirementValue int    `json:"requirementValue" validate:"min=0"`
}

// AwardBadgeRequest grants a badge manually.
type AwardBadgeRequest struct {
	BadgeID string `json:"badgeId" validate:"required"`
}

// AwardBadgeResponse reports whether a new award record was created.
type AwardBadgeResponse struct {
	Badge   models.Badge `json:"badge"`
	Created bool         `json:"created"`
}

// CreateRewardRequest defines a redeemable reward.
type CreateRewardRequest struct {
	ClassID     string `json:"classId" validate:"required"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	PointCost   int    `json:"pointCost" validate:"required,min=1"`
	IsActive    *bool  `json:"isActive,omitempty"`
}

// RedeemRewardRequest exchanges points for a reward. RequestID makes retries safe.
type RedeemRewardRequest struct {
	RewardID  string `json:"rewardId" validate:"required"`
	RequestID string `json:"requestId" validate:"required,max=128"`
}

// RedemptionResponse is the outcome of a redemption.
type RedemptionResponse struct {
	Redemption models.StudentReward `json:"redemption"`
	Balance    int                  `json:"balance"`
	Replayed   bool                 `json:"replayed"`
}

// NotificationListRequest filters a notification inbox.
type NotificationListRequest struct {
	UnreadOnly bool `form:"unreadOnly"`
	Page       int  `form:"page" validate:"omitempty,min=1"`
	PageSize   int  `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ExportLeaderboardQuery selects window and file format for an export.
type ExportLeaderboardQuery struct {
	Window string `form:"window" validate:"omitempty,time_window"`
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
