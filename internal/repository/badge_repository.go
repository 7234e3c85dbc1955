package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// BadgeRepository stores the badge catalog and award records.
type BadgeRepository struct {
	db *sqlx.DB
}

// NewBadgeRepository constructs the repository.
func NewBadgeRepository(db *sqlx.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create inserts a badge definition.
func (r *BadgeRepository) Create(ctx context.Context, badge *models.Badge) error {
	if badge.ID == "" {
		badge.ID = uuid.NewString()
	}
	if badge.CreatedAt.IsZero() {
		badge.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO badges (id, class_id, name, description, icon, requirement_type, requirement_value, created_at)
VALUES (:id, :class_id, :name, :description, :icon, :requirement_type, :requirement_value, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, badge); err != nil {
		return fmt.Errorf("create badge: %w", err)
	}
	return nil
}

// FindByID loads a badge. Missing rows surface as sql.ErrNoRows.
func (r *BadgeRepository) FindByID(ctx context.Context, id string) (*models.Badge, error) {
	var badge models.Badge
	query := `SELECT id, class_id, name, description, icon, requirement_type, requirement_value, created_at FROM badges WHERE id = $1`
	if err := r.db.GetContext(ctx, &badge, query, id); err != nil {
		return nil, fmt.Errorf("find badge %s: %w", id, err)
	}
	return &badge, nil
}

// ListByClass returns the class catalog ordered by requirement.
func (r *BadgeRepository) ListByClass(ctx context.Context, classID string) ([]models.Badge, error) {
	query := `SELECT id, class_id, name, description, icon, requirement_type, requirement_value, created_at
FROM badges WHERE class_id = $1 ORDER BY requirement_type ASC, requirement_value ASC, name ASC`
	badges := []models.Badge{}
	if err := r.db.SelectContext(ctx, &badges, query, classID); err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	return badges, nil
}

// ListAwards returns the student's award records.
func (r *BadgeRepository) ListAwards(ctx context.Context, studentID string) ([]models.StudentBadge, error) {
	query := `SELECT id, student_id, badge_id, awarded_by, earned_at FROM student_badges WHERE student_id = $1 ORDER BY earned_at ASC`
	awards := []models.StudentBadge{}
	if err := r.db.SelectContext(ctx, &awards, query, studentID); err != nil {
		return nil, fmt.Errorf("list student badges: %w", err)
	}
	return awards, nil
}

// ListAwardDetails returns awards joined with their badge definitions, newest first.
func (r *BadgeRepository) ListAwardDetails(ctx context.Context, studentID string) ([]models.StudentBadgeDetail, error) {
	query := `SELECT sb.id, sb.student_id, sb.badge_id, sb.awarded_by, sb.earned_at,
	b.name AS badge_name, b.icon AS badge_icon, b.requirement_type
FROM student_badges sb
JOIN badges b ON b.id = sb.badge_id
WHERE sb.student_id = $1
ORDER BY sb.earned_at DESC`
	details := []models.StudentBadgeDetail{}
	if err := r.db.SelectContext(ctx, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list student badge details: %w", err)
	}
	return details, nil
}

// Award records a badge for a student. It reports false, without error, when
// the student already holds the badge.
func (r *BadgeRepository) Award(ctx context.Context, award *models.StudentBadge) (bool, error) {
	if award.ID == "" {
		award.ID = uuid.NewString()
	}
	if award.EarnedAt.IsZero() {
		award.EarnedAt = time.Now().UTC()
	}
	query := `INSERT INTO student_badges (id, student_id, badge_id, awarded_by, earned_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (student_id, badge_id) DO NOTHING RETURNING id`
	var id string
	err := r.db.QueryRowxContext(ctx, query, award.ID, award.StudentID, award.BadgeID, award.AwardedBy, award.EarnedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("award badge: %w", err)
	}
	return true, nil
}
