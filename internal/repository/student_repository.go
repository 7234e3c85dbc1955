package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// StudentRepository reads the class roster maintained by the school system.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID loads a student. Missing rows surface as sql.ErrNoRows.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	query := `SELECT id, class_id, full_name, user_id, parent_user_id, active FROM students WHERE id = $1`
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, fmt.Errorf("find student %s: %w", id, err)
	}
	return &student, nil
}

// ListByClass returns the active roster in a stable order (name, then id).
// Leaderboard ties keep this order.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	query := `SELECT id, class_id, full_name, user_id, parent_user_id, active
FROM students WHERE class_id = $1 AND active = TRUE ORDER BY full_name ASC, id ASC`
	students := []models.Student{}
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		return nil, fmt.Errorf("list students for class %s: %w", classID, err)
	}
	return students, nil
}

// ListClassIDs returns every class with at least one active student.
func (r *StudentRepository) ListClassIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT class_id FROM students WHERE active = TRUE ORDER BY class_id`); err != nil {
		return nil, fmt.Errorf("list class ids: %w", err)
	}
	return ids, nil
}
