package models

import "time"

// CategoryType classifies a behaviour category as rewarding or penalising.
type CategoryType string

const (
	CategoryPositive CategoryType = "positive"
	CategoryNegative CategoryType = "negative"
)

// Valid reports whether t is a known category type.
func (t CategoryType) Valid() bool {
	return t == CategoryPositive || t == CategoryNegative
}

// AcceptsPoints reports whether points carry a sign consistent with the type.
// Zero is allowed for both types.
func (t CategoryType) AcceptsPoints(points int) bool {
	switch t {
	case CategoryPositive:
		return points >= 0
	case CategoryNegative:
		return points <= 0
	default:
		return false
	}
}

// BehaviorCategory is class scoped configuration describing a loggable behaviour.
type BehaviorCategory struct {
	ID         string       `db:"id" json:"id"`
	ClassID    string       `db:"class_id" json:"class_id"`
	Name       string       `db:"name" json:"name"`
	PointValue int          `db:"point_value" json:"point_value"`
	Type       CategoryType `db:"type" json:"type"`
	Icon       string       `db:"icon" json:"icon"`
	Color      string       `db:"color" json:"color"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// BehaviorEvent is a single teacher-logged, point-valued occurrence. Events are
// immutable and removed only by hard delete.
type BehaviorEvent struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	CategoryID string    `db:"category_id" json:"category_id"`
	TeacherID  string    `db:"teacher_id" json:"teacher_id"`
	Points     int       `db:"points" json:"points"`
	Note       *string   `db:"note" json:"note,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// BehaviorEventFilter narrows event store reads. DateFrom is inclusive,
// DateTo exclusive.
type BehaviorEventFilter struct {
	StudentID  string
	ClassID    string
	CategoryID string
	DateFrom   *time.Time
	DateTo     *time.Time
	Page       int
	PageSize   int
}
