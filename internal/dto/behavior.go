package dto

import (
	"time"

	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// LogBehaviorRequest records one behaviour event. Points defaults to the
// category's point value and must carry the category's sign when given.
type LogBehaviorRequest struct {
	StudentID  string  `json:"studentId" validate:"required"`
	ClassID    string  `json:"classId" validate:"required"`
	CategoryID string  `json:"categoryId" validate:"required"`
	Points     *int    `json:"points,omitempty"`
	Note       *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// LogBehaviorResponse reports the stored event and its immediate consequences.
// Totals is omitted when they could not be read back after the write.
type LogBehaviorResponse struct {
	Event         models.BehaviorEvent `json:"event"`
	Totals        *gamification.Totals `json:"totals,omitempty"`
	AwardedBadges []models.Badge       `json:"awardedBadges"`
}

// BehaviorListRequest filters the behaviour history.
type BehaviorListRequest struct {
	StudentID  string     `form:"studentId"`
	ClassID    string     `form:"classId"`
	CategoryID string     `form:"categoryId"`
	DateFrom   *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo     *time.Time `form:"dateTo" time_format:"2006-01-02"`
	Page       int        `form:"page" validate:"omitempty,min=1"`
	PageSize   int        `form:"pageSize" validate:"omitempty,min=1,max=200"`
}

// CreateCategoryRequest defines a class behaviour category.
type CreateCategoryRequest struct {
	ClassID    string `json:"classId" validate:"required"`
	Name       string `json:"name" validate:"required,max=100"`
	PointValue int    `json:"pointValue"`
	Type       string `json:"type" validate:"required,category_type"`
	Icon       string `json:"icon" validate:"omitempty,max=50"`
	Color      string `json:"color" validate:"omitempty,max=20"`
}
