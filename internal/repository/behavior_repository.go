package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

const behaviorEventColumns = "id, student_id, class_id, category_id, teacher_id, points, note, created_at"

// BehaviorRepository is the append-only event store for behaviour events.
type BehaviorRepository struct {
	db *sqlx.DB
}

// NewBehaviorRepository constructs a new repository.
func NewBehaviorRepository(db *sqlx.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

func eventWhere(filter models.BehaviorEventFilter) (string, []interface{}) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)))
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	return strings.Join(where, " AND "), args
}

// Append inserts a new event and returns its id.
func (r *BehaviorRepository) Append(ctx context.Context, event *models.BehaviorEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO behavior_events (id, student_id, class_id, category_id, teacher_id, points, note, created_at)
VALUES (:id, :student_id, :class_id, :category_id, :teacher_id, :points, :note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return "", fmt.Errorf("append behavior event: %w", err)
	}
	return event.ID, nil
}

// FindByID loads one event. Missing rows surface as sql.ErrNoRows.
func (r *BehaviorRepository) FindByID(ctx context.Context, id string) (*models.BehaviorEvent, error) {
	var event models.BehaviorEvent
	query := "SELECT " + behaviorEventColumns + " FROM behavior_events WHERE id = $1"
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, fmt.Errorf("find behavior event %s: %w", id, err)
	}
	return &event, nil
}

// List returns a page of events, newest first.
func (r *BehaviorRepository) List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error) {
	whereClause, args := eventWhere(filter)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size
	query := fmt.Sprintf(`SELECT %s FROM behavior_events WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		behaviorEventColumns, whereClause, size, offset)
	events := []models.BehaviorEvent{}
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list behavior events: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM behavior_events WHERE "+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("count behavior events: %w", err)
	}
	return events, total, nil
}

// ListAll returns every matching event in chronological order. Pagination
// fields are ignored; the engine needs the full history.
func (r *BehaviorRepository) ListAll(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, error) {
	whereClause, args := eventWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM behavior_events WHERE %s ORDER BY created_at ASC, id ASC", behaviorEventColumns, whereClause)
	events := []models.BehaviorEvent{}
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list all behavior events: %w", err)
	}
	return events, nil
}

// Delete hard-deletes an event. Missing rows surface as sql.ErrNoRows.
func (r *BehaviorRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM behavior_events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete behavior event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete behavior event rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete behavior event %s: %w", id, sql.ErrNoRows)
	}
	return nil
}
