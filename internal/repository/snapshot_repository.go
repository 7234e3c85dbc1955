package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// SnapshotRepository maintains the point_snapshots cache.
type SnapshotRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Rebuild overwrites the student's snapshot with totals recomputed from the
// event and redemption tables. The stored rank is left untouched.
func (r *SnapshotRepository) Rebuild(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot rebuild: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := r.now()
	snap, err := lockSnapshot(ctx, tx, studentID, classID, now)
	if err != nil {
		return nil, err
	}
	totals, err := loadSourceTotals(ctx, tx, studentID, classID)
	if err != nil {
		return nil, err
	}
	applyTotals(snap, totals, now)
	if err := writeSnapshot(ctx, tx, snap); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot rebuild: %w", err)
	}
	committed = true
	return snap, nil
}

// Get returns the cached snapshot. Missing rows surface as sql.ErrNoRows.
func (r *SnapshotRepository) Get(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error) {
	var snap models.PointSnapshot
	query := "SELECT " + snapshotColumns + " FROM point_snapshots WHERE student_id = $1 AND class_id = $2"
	if err := r.db.GetContext(ctx, &snap, query, studentID, classID); err != nil {
		return nil, fmt.Errorf("get point snapshot: %w", err)
	}
	return &snap, nil
}

// ListByClass returns every snapshot of a class.
func (r *SnapshotRepository) ListByClass(ctx context.Context, classID string) ([]models.PointSnapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM point_snapshots WHERE class_id = $1 ORDER BY rank ASC NULLS LAST, student_id ASC"
	snaps := []models.PointSnapshot{}
	if err := r.db.SelectContext(ctx, &snaps, query, classID); err != nil {
		return nil, fmt.Errorf("list point snapshots: %w", err)
	}
	return snaps, nil
}

// UpdateRanks stores all-time ranks for a class in one transaction.
func (r *SnapshotRepository) UpdateRanks(ctx context.Context, classID string, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rank update: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx, `UPDATE point_snapshots SET rank = $3 WHERE student_id = $1 AND class_id = $2`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare rank update: %w", err)
	}
	defer stmt.Close()
	for studentID, rank := range ranks {
		if _, err := stmt.ExecContext(ctx, studentID, classID, rank); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update rank for %s: %w", studentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rank update: %w", err)
	}
	return nil
}

const snapshotAuditQuery = `SELECT s.id AS student_id, s.class_id,
	(ps.student_id IS NOT NULL) AS has_snapshot,
	COALESCE(ps.total_points, 0) AS stored_total,
	COALESCE(ps.spent_points, 0) AS stored_spent,
	COALESCE(ps.balance, 0) AS stored_balance,
	(SELECT COALESCE(SUM(be.points), 0) FROM behavior_events be
		WHERE be.student_id = s.id AND be.class_id = s.class_id) AS source_total,
	(SELECT COALESCE(SUM(sr.points_deducted), 0) FROM student_rewards sr JOIN rewards rw ON rw.id = sr.reward_id
		WHERE sr.student_id = s.id AND rw.class_id = s.class_id) AS source_spent
FROM students s
LEFT JOIN point_snapshots ps ON ps.student_id = s.id AND ps.class_id = s.class_id
WHERE s.class_id = $1 AND s.active = TRUE
ORDER BY s.id ASC`

// Audit recomputes every active student's totals for a class next to the
// stored snapshot values. It reads without locking.
func (r *SnapshotRepository) Audit(ctx context.Context, classID string) ([]models.SnapshotAudit, error) {
	rows := []models.SnapshotAudit{}
	if err := r.db.SelectContext(ctx, &rows, snapshotAuditQuery, classID); err != nil {
		return nil, fmt.Errorf("audit point snapshots: %w", err)
	}
	return rows, nil
}
