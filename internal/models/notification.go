package models

import (
	"encoding/json"
	"time"
)

// NotificationType enumerates engine generated notifications.
type NotificationType string

const (
	NotificationBehaviorLogged NotificationType = "behavior_logged"
	NotificationBadgeEarned    NotificationType = "badge_earned"
	NotificationRewardRedeemed NotificationType = "reward_redeemed"
)

// Notification is an advisory record for downstream delivery.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"user_id"`
	Type        NotificationType `db:"type" json:"type"`
	Title       string           `db:"title" json:"title"`
	Content     string           `db:"content" json:"content"`
	RelatedData json.RawMessage  `db:"related_data" json:"related_data,omitempty"`
	IsRead      bool             `db:"is_read" json:"is_read"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows an inbox listing.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
