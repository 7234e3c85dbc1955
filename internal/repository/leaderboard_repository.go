package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// LeaderboardRepository persists ranking generations used as trend baselines.
type LeaderboardRepository struct {
	db *sqlx.DB
}

// NewLeaderboardRepository constructs the repository.
func NewLeaderboardRepository(db *sqlx.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// Latest returns up to limit generations for (class, window), newest first.
func (r *LeaderboardRepository) Latest(ctx context.Context, classID, window string, limit int) ([]models.LeaderboardGeneration, error) {
	if limit <= 0 {
		limit = 2
	}
	query := `SELECT id, seq, class_id, window_name, entries, computed_at
FROM leaderboard_snapshots WHERE class_id = $1 AND window_name = $2 ORDER BY seq DESC LIMIT $3`
	gens := []models.LeaderboardGeneration{}
	if err := r.db.SelectContext(ctx, &gens, query, classID, window, limit); err != nil {
		return nil, fmt.Errorf("latest leaderboard generations: %w", err)
	}
	return gens, nil
}

// Save stores a new generation and fills its id and sequence.
func (r *LeaderboardRepository) Save(ctx context.Context, gen *models.LeaderboardGeneration) error {
	if gen.ID == "" {
		gen.ID = uuid.NewString()
	}
	if gen.ComputedAt.IsZero() {
		gen.ComputedAt = time.Now().UTC()
	}
	query := `INSERT INTO leaderboard_snapshots (id, class_id, window_name, entries, computed_at)
VALUES ($1, $2, $3, $4, $5) RETURNING seq`
	if err := r.db.QueryRowxContext(ctx, query, gen.ID, gen.ClassID, gen.Window, []byte(gen.Entries), gen.ComputedAt).Scan(&gen.Seq); err != nil {
		return fmt.Errorf("save leaderboard generation: %w", err)
	}
	return nil
}

// Prune keeps the newest keep generations for (class, window).
func (r *LeaderboardRepository) Prune(ctx context.Context, classID, window string, keep int) (int64, error) {
	query := `DELETE FROM leaderboard_snapshots
WHERE class_id = $1 AND window_name = $2 AND seq < (
	SELECT COALESCE(MIN(seq), 0) FROM (
		SELECT seq FROM leaderboard_snapshots WHERE class_id = $1 AND window_name = $2 ORDER BY seq DESC LIMIT $3
	) recent
)`
	res, err := r.db.ExecContext(ctx, query, classID, window, keep)
	if err != nil {
		return 0, fmt.Errorf("prune leaderboard generations: %w", err)
	}
	return res.RowsAffected()
}
