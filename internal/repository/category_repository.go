package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// CategoryRepository stores behaviour category configuration.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository constructs the repository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a category.
func (r *CategoryRepository) Create(ctx context.Context, category *models.BehaviorCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO behavior_categories (id, class_id, name, point_value, type, icon, color, created_at)
VALUES (:id, :class_id, :name, :point_value, :type, :icon, :color, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, category); err != nil {
		return fmt.Errorf("create behavior category: %w", err)
	}
	return nil
}

// FindByID loads a category. Missing rows surface as sql.ErrNoRows.
func (r *CategoryRepository) FindByID(ctx context.Context, id string) (*models.BehaviorCategory, error) {
	var category models.BehaviorCategory
	query := `SELECT id, class_id, name, point_value, type, icon, color, created_at FROM behavior_categories WHERE id = $1`
	if err := r.db.GetContext(ctx, &category, query, id); err != nil {
		return nil, fmt.Errorf("find behavior category %s: %w", id, err)
	}
	return &category, nil
}

// ListByClass returns a class's categories, positive first.
func (r *CategoryRepository) ListByClass(ctx context.Context, classID string) ([]models.BehaviorCategory, error) {
	query := `SELECT id, class_id, name, point_value, type, icon, color, created_at
FROM behavior_categories WHERE class_id = $1 ORDER BY type DESC, name ASC`
	categories := []models.BehaviorCategory{}
	if err := r.db.SelectContext(ctx, &categories, query, classID); err != nil {
		return nil, fmt.Errorf("list behavior categories: %w", err)
	}
	return categories, nil
}
