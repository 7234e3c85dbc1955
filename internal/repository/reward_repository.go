package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-behavior-api/internal/models"
)

// ErrRequestIDReused is returned when a redemption request id was already
// used for a different student or reward.
var ErrRequestIDReused = errors.New("redemption request id already used")

const (
	uniqueViolation             = pq.ErrorCode("23505")
	redemptionRequestConstraint = "uq_student_rewards_request"
)

const studentRewardColumns = "id, student_id, reward_id, request_id, points_deducted, earned_at"

// RewardRepository stores the reward catalog and the redemption ledger.
type RewardRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRewardRepository constructs the repository.
func NewRewardRepository(db *sqlx.DB) *RewardRepository {
	return &RewardRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a reward definition.
func (r *RewardRepository) Create(ctx context.Context, reward *models.Reward) error {
	if reward.ID == "" {
		reward.ID = uuid.NewString()
	}
	if reward.CreatedAt.IsZero() {
		reward.CreatedAt = r.now()
	}
	query := `INSERT INTO rewards (id, class_id, name, description, point_cost, is_active, created_at)
VALUES (:id, :class_id, :name, :description, :point_cost, :is_active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reward); err != nil {
		return fmt.Errorf("create reward: %w", err)
	}
	return nil
}

// FindByID loads a reward. Missing rows surface as sql.ErrNoRows.
func (r *RewardRepository) FindByID(ctx context.Context, id string) (*models.Reward, error) {
	var reward models.Reward
	query := `SELECT id, class_id, name, description, point_cost, is_active, created_at FROM rewards WHERE id = $1`
	if err := r.db.GetContext(ctx, &reward, query, id); err != nil {
		return nil, fmt.Errorf("find reward %s: %w", id, err)
	}
	return &reward, nil
}

// ListByClass returns the catalog, cheapest first.
func (r *RewardRepository) ListByClass(ctx context.Context, classID string, activeOnly bool) ([]models.Reward, error) {
	query := `SELECT id, class_id, name, description, point_cost, is_active, created_at FROM rewards WHERE class_id = $1`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY point_cost ASC, name ASC"
	rewards := []models.Reward{}
	if err := r.db.SelectContext(ctx, &rewards, query, classID); err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return rewards, nil
}

// ListRedemptions returns a student's redemption history, newest first.
func (r *RewardRepository) ListRedemptions(ctx context.Context, studentID string) ([]models.StudentReward, error) {
	query := "SELECT " + studentRewardColumns + " FROM student_rewards WHERE student_id = $1 ORDER BY earned_at DESC"
	records := []models.StudentReward{}
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	return records, nil
}

// RedeemParams identifies one redemption attempt.
type RedeemParams struct {
	StudentID string
	ClassID   string
	Reward    models.Reward
	RequestID string
}

// RedemptionResult is the committed outcome of Redeem.
type RedemptionResult struct {
	Record   models.StudentReward
	Snapshot models.PointSnapshot
	// Replayed is true when RequestID matched an earlier redemption; nothing
	// was debited by this call.
	Replayed bool
}

// DebitFunc decides how many points to deduct given a freshly recomputed
// balance. Returning an error aborts the redemption with no effects.
type DebitFunc func(balance int) (int, error)

// Redeem inserts the redemption record and debits the snapshot balance in one
// transaction. The balance handed to decide is recomputed from source rows
// while the student's snapshot row is locked.
func (r *RewardRepository) Redeem(ctx context.Context, params RedeemParams, decide DebitFunc) (*RedemptionResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin redemption: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := r.now()
	snap, err := lockSnapshot(ctx, tx, params.StudentID, params.ClassID, now)
	if err != nil {
		return nil, err
	}

	var existing models.StudentReward
	err = tx.GetContext(ctx, &existing, "SELECT "+studentRewardColumns+" FROM student_rewards WHERE request_id = $1", params.RequestID)
	switch {
	case err == nil:
		if existing.StudentID != params.StudentID || existing.RewardID != params.Reward.ID {
			return nil, ErrRequestIDReused
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit redemption replay: %w", err)
		}
		committed = true
		return &RedemptionResult{Record: existing, Snapshot: *snap, Replayed: true}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("lookup redemption request: %w", err)
	}

	totals, err := loadSourceTotals(ctx, tx, params.StudentID, params.ClassID)
	if err != nil {
		return nil, err
	}
	deducted, err := decide(totals.Earned - totals.Spent)
	if err != nil {
		return nil, err
	}

	record := models.StudentReward{
		ID:             uuid.NewString(),
		StudentID:      params.StudentID,
		RewardID:       params.Reward.ID,
		RequestID:      params.RequestID,
		PointsDeducted: deducted,
		EarnedAt:       now,
	}
	insert := `INSERT INTO student_rewards (id, student_id, reward_id, request_id, points_deducted, earned_at)
VALUES (:id, :student_id, :reward_id, :request_id, :points_deducted, :earned_at)`
	if _, err := tx.NamedExecContext(ctx, insert, record); err != nil {
		// A concurrent redemption for another student claimed the request id
		// between the lookup and this insert.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == redemptionRequestConstraint {
			return nil, ErrRequestIDReused
		}
		return nil, fmt.Errorf("insert redemption: %w", err)
	}

	totals.Spent += deducted
	applyTotals(snap, totals, now)
	if err := writeSnapshot(ctx, tx, snap); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit redemption: %w", err)
	}
	committed = true
	return &RedemptionResult{Record: record, Snapshot: *snap}, nil
}
