package models

import (
	"encoding/json"
	"time"
)

// RequirementType determines how a badge is earned.
type RequirementType string

const (
	RequirementPointsThreshold RequirementType = "points_threshold"
	RequirementBehaviorCount   RequirementType = "behavior_count"
	// RequirementAchievement badges are only ever awarded manually.
	RequirementAchievement RequirementType = "achievement"
)

// Valid reports whether r is a known requirement type.
func (r RequirementType) Valid() bool {
	switch r {
	case RequirementPointsThreshold, RequirementBehaviorCount, RequirementAchievement:
		return true
	}
	return false
}

// Badge is a class scoped achievement definition.
type Badge struct {
	ID               string          `db:"id" json:"id"`
	ClassID          string          `db:"class_id" json:"class_id"`
	Name             string          `db:"name" json:"name"`
	Description      string          `db:"description" json:"description"`
	Icon             string          `db:"icon" json:"icon"`
	RequirementType  RequirementType `db:"requirement_type" json:"requirement_type"`
	RequirementValue int             `db:"requirement_value" json:"requirement_value"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// StudentBadge is an award record; at most one exists per (student, badge).
type StudentBadge struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	BadgeID   string    `db:"badge_id" json:"badge_id"`
	AwardedBy *string   `db:"awarded_by" json:"awarded_by,omitempty"`
	EarnedAt  time.Time `db:"earned_at" json:"earned_at"`
}

// StudentBadgeDetail joins an award with its badge definition.
type StudentBadgeDetail struct {
	StudentBadge
	BadgeName       string          `db:"badge_name" json:"badge_name"`
	BadgeIcon       string          `db:"badge_icon" json:"badge_icon"`
	RequirementType RequirementType `db:"requirement_type" json:"requirement_type"`
}

// Reward is a redeemable item priced in points.
type Reward struct {
	ID          string    `db:"id" json:"id"`
	ClassID     string    `db:"class_id" json:"class_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	PointCost   int       `db:"point_cost" json:"point_cost"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// StudentReward records one redemption and the points it debited.
type StudentReward struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	RewardID       string    `db:"reward_id" json:"reward_id"`
	RequestID      string    `db:"request_id" json:"request_id"`
	PointsDeducted int       `db:"points_deducted" json:"points_deducted"`
	EarnedAt       time.Time `db:"earned_at" json:"earned_at"`
}

// PointSnapshot is a rebuildable cache of a student's standing in a class.
// It is always overwritten from source rows, never incremented.
type PointSnapshot struct {
	StudentID         string    `db:"student_id" json:"student_id"`
	ClassID           string    `db:"class_id" json:"class_id"`
	TotalPoints       int       `db:"total_points" json:"total_points"`
	GoodBehaviorCount int       `db:"good_behavior_count" json:"good_behavior_count"`
	BadBehaviorCount  int       `db:"bad_behavior_count" json:"bad_behavior_count"`
	SpentPoints       int       `db:"spent_points" json:"spent_points"`
	Balance           int       `db:"balance" json:"balance"`
	Rank              *int      `db:"rank" json:"rank,omitempty"`
	SnapshotDate      time.Time `db:"snapshot_date" json:"snapshot_date"`
}

// Trend describes rank movement against the previous ranking.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendSame Trend = "same"
)

// LeaderboardEntry is one ranked student within a window.
type LeaderboardEntry struct {
	StudentID     string `json:"student_id"`
	StudentName   string `json:"student_name"`
	TotalPoints   int    `json:"total_points"`
	GoodBehaviors int    `json:"good_behaviors"`
	BadBehaviors  int    `json:"bad_behaviors"`
	Rank          int    `json:"rank"`
	PreviousRank  *int   `json:"previous_rank,omitempty"`
	Trend         Trend  `json:"trend"`
}

// LeaderboardGeneration is a persisted ranking used as the trend baseline.
type LeaderboardGeneration struct {
	ID         string          `db:"id" json:"id"`
	Seq        int64           `db:"seq" json:"seq"`
	ClassID    string          `db:"class_id" json:"class_id"`
	Window     string          `db:"window_name" json:"window"`
	Entries    json.RawMessage `db:"entries" json:"entries"`
	ComputedAt time.Time       `db:"computed_at" json:"computed_at"`
}

// SnapshotAudit compares a stored snapshot with totals recomputed from source rows.
type SnapshotAudit struct {
	StudentID     string `db:"student_id" json:"student_id"`
	ClassID       string `db:"class_id" json:"class_id"`
	HasSnapshot   bool   `db:"has_snapshot" json:"has_snapshot"`
	StoredTotal   int    `db:"stored_total" json:"stored_total"`
	StoredSpent   int    `db:"stored_spent" json:"stored_spent"`
	StoredBalance int    `db:"stored_balance" json:"stored_balance"`
	SourceTotal   int    `db:"source_total" json:"source_total"`
	SourceSpent   int    `db:"source_spent" json:"source_spent"`
}

// Drifted reports whether the stored row disagrees with the source rows.
func (a SnapshotAudit) Drifted() bool {
	if !a.HasSnapshot {
		return a.SourceTotal != 0 || a.SourceSpent != 0
	}
	return a.StoredTotal != a.SourceTotal ||
		a.StoredSpent != a.SourceSpent ||
		a.StoredBalance != a.SourceTotal-a.SourceSpent
}
