package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

const snapshotColumns = "student_id, class_id, total_points, good_behavior_count, bad_behavior_count, spent_points, balance, rank, snapshot_date"

// sourceTotals are recomputed from behavior_events and student_rewards; they
// never read the snapshot row itself.
type sourceTotals struct {
	Earned int `db:"earned"`
	Good   int `db:"good"`
	Bad    int `db:"bad"`
	Spent  int `db:"spent"`
}

const sourceTotalsQuery = `SELECT
	(SELECT COALESCE(SUM(points), 0) FROM behavior_events WHERE student_id = $1 AND class_id = $2) AS earned,
	(SELECT COUNT(*) FROM behavior_events WHERE student_id = $1 AND class_id = $2 AND points > 0) AS good,
	(SELECT COUNT(*) FROM behavior_events WHERE student_id = $1 AND class_id = $2 AND points < 0) AS bad,
	(SELECT COALESCE(SUM(sr.points_deducted), 0) FROM student_rewards sr JOIN rewards rw ON rw.id = sr.reward_id
		WHERE sr.student_id = $1 AND rw.class_id = $2) AS spent`

// lockSnapshot creates the snapshot row if needed and holds its row lock for
// the rest of tx. Every writer of a student's ledger passes through here, so
// rebuilds and redemptions for one student are serialised across instances.
func lockSnapshot(ctx context.Context, tx *sqlx.Tx, studentID, classID string, now time.Time) (*models.PointSnapshot, error) {
	if _, err := tx.ExecContext(ctx, `INSERT INTO point_snapshots (student_id, class_id, snapshot_date)
VALUES ($1, $2, $3) ON CONFLICT (student_id, class_id) DO NOTHING`, studentID, classID, now); err != nil {
		return nil, fmt.Errorf("ensure point snapshot: %w", err)
	}
	var snap models.PointSnapshot
	query := "SELECT " + snapshotColumns + " FROM point_snapshots WHERE student_id = $1 AND class_id = $2 FOR UPDATE"
	if err := tx.GetContext(ctx, &snap, query, studentID, classID); err != nil {
		return nil, fmt.Errorf("lock point snapshot: %w", err)
	}
	return &snap, nil
}

func loadSourceTotals(ctx context.Context, tx *sqlx.Tx, studentID, classID string) (sourceTotals, error) {
	var totals sourceTotals
	if err := tx.GetContext(ctx, &totals, sourceTotalsQuery, studentID, classID); err != nil {
		return sourceTotals{}, fmt.Errorf("recompute ledger totals: %w", err)
	}
	return totals, nil
}

func applyTotals(snap *models.PointSnapshot, totals sourceTotals, now time.Time) {
	snap.TotalPoints = totals.Earned
	snap.GoodBehaviorCount = totals.Good
	snap.BadBehaviorCount = totals.Bad
	snap.SpentPoints = totals.Spent
	snap.Balance = totals.Earned - totals.Spent
	snap.SnapshotDate = now
}

func writeSnapshot(ctx context.Context, tx *sqlx.Tx, snap *models.PointSnapshot) error {
	query := `UPDATE point_snapshots SET total_points = :total_points, good_behavior_count = :good_behavior_count,
	bad_behavior_count = :bad_behavior_count, spent_points = :spent_points, balance = :balance, snapshot_date = :snapshot_date
WHERE student_id = :student_id AND class_id = :class_id`
	if _, err := tx.NamedExecContext(ctx, query, snap); err != nil {
		return fmt.Errorf("write point snapshot: %w", err)
	}
	return nil
}
