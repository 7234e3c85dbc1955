package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	"github.com/noah-isme/sma-behavior-api/internal/repository"
	"github.com/noah-isme/sma-behavior-api/pkg/changefeed"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

type rewardRepository interface {
	Create(ctx context.Context, reward *models.Reward) error
	FindByID(ctx context.Context, id string) (*models.Reward, error)
	ListByClass(ctx context.Context, classID string, activeOnly bool) ([]models.Reward, error)
	ListRedemptions(ctx context.Context, studentID string) ([]models.StudentReward, error)
	Redeem(ctx context.Context, params repository.RedeemParams, decide repository.DebitFunc) (*repository.RedemptionResult, error)
}

type studentLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type balanceSource interface {
	RebuildStudent(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error)
}

// RewardService manages the reward catalog and redemptions.
type RewardService struct {
	repo      rewardRepository
	students  studentReader
	balances  balanceSource
	locks     studentLocker
	notifier  notifier
	changes   changePublisher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewRewardService constructs the service.
func NewRewardService(repo rewardRepository, students studentReader, balances balanceSource, locks studentLocker, notify notifier, changes changePublisher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *RewardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if changes == nil {
		changes = discardChanges{}
	}
	return &RewardService{
		repo:      repo,
		students:  students,
		balances:  balances,
		locks:     locks,
		notifier:  notify,
		changes:   changes,
		validator: ensureValidator(validate),
		metrics:   metrics,
		logger:    logger,
	}
}

// Create adds a reward to a class catalog.
func (s *RewardService) Create(ctx context.Context, req dto.CreateRewardRequest) (*models.Reward, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	reward := &models.Reward{
		ClassID:     req.ClassID,
		Name:        req.Name,
		Description: req.Description,
		PointCost:   req.PointCost,
		IsActive:    true,
	}
	if req.IsActive != nil {
		reward.IsActive = *req.IsActive
	}
	if err := s.repo.Create(ctx, reward); err != nil {
		return nil, internalError(err, "failed to create reward")
	}
	return reward, nil
}

// ListCatalog returns the class's rewards, cheapest first.
func (s *RewardService) ListCatalog(ctx context.Context, classID string, activeOnly bool) ([]models.Reward, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	rewards, err := s.repo.ListByClass(ctx, classID, activeOnly)
	if err != nil {
		return nil, internalError(err, "failed to list rewards")
	}
	return rewards, nil
}

// ListAffordable returns active rewards the student's current balance covers.
func (s *RewardService) ListAffordable(ctx context.Context, studentID string) ([]models.Reward, error) {
	student, err := resolveStudent(ctx, s.students, studentID, "")
	if err != nil {
		return nil, err
	}
	snap, err := s.balances.RebuildStudent(ctx, student.ID, student.ClassID)
	if err != nil {
		return nil, internalError(err, "failed to compute balance")
	}
	rewards, err := s.repo.ListByClass(ctx, student.ClassID, true)
	if err != nil {
		return nil, internalError(err, "failed to list rewards")
	}
	return gamification.AffordableRewards(snap.Balance, rewards), nil
}

// ListRedemptions returns the student's redemption history.
func (s *RewardService) ListRedemptions(ctx context.Context, studentID string) ([]models.StudentReward, error) {
	if _, err := resolveStudent(ctx, s.students, studentID, ""); err != nil {
		return nil, err
	}
	records, err := s.repo.ListRedemptions(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list redemptions")
	}
	return records, nil
}

// RedeemReward exchanges points for a reward. Redemptions for one student are
// serialised, the balance is recomputed under a row lock, and a repeated
// request id returns the original redemption without debiting again.
func (s *RewardService) RedeemReward(ctx context.Context, studentID string, req dto.RedeemRewardRequest) (*dto.RedemptionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	student, err := resolveStudent(ctx, s.students, studentID, "")
	if err != nil {
		return nil, err
	}
	reward, err := s.repo.FindByID(ctx, req.RewardID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reward not found")
		}
		return nil, internalError(err, "failed to load reward")
	}
	if reward.ClassID != student.ClassID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reward not found in student's class")
	}

	if s.locks != nil {
		unlock, err := s.locks.Lock(ctx, "student:"+student.ID)
		if err != nil {
			return nil, internalError(err, "redemption cancelled")
		}
		defer unlock()
	}

	result, err := s.repo.Redeem(ctx, repository.RedeemParams{
		StudentID: student.ID,
		ClassID:   student.ClassID,
		Reward:    *reward,
		RequestID: req.RequestID,
	}, func(balance int) (int, error) {
		debit, err := gamification.Redeem(balance, *reward)
		if err != nil {
			return 0, err
		}
		return debit.PointsDeducted, nil
	})
	if err != nil {
		return nil, s.redemptionError(err)
	}

	if result.Replayed {
		s.metrics.RecordRedemption("replayed")
		return &dto.RedemptionResponse{Redemption: result.Record, Balance: result.Snapshot.Balance, Replayed: true}, nil
	}

	s.metrics.RecordRedemption("accepted")
	s.logger.Info("reward redeemed",
		zap.String("student_id", student.ID),
		zap.String("reward_id", reward.ID),
		zap.Int("points", result.Record.PointsDeducted),
		zap.Int("balance", result.Snapshot.Balance),
	)
	s.notifyRedemption(ctx, *student, *reward, result.Snapshot.Balance)
	s.changes.Publish(ctx, student.ClassID, student.ID, changefeed.ReasonRewardRedeemed)
	return &dto.RedemptionResponse{Redemption: result.Record, Balance: result.Snapshot.Balance}, nil
}

func (s *RewardService) redemptionError(err error) error {
	var short *gamification.InsufficientPointsError
	switch {
	case errors.As(err, &short):
		s.metrics.RecordRedemption("insufficient")
		return appErrors.InsufficientPoints(short.Balance, short.Cost)
	case errors.Is(err, gamification.ErrRewardUnavailable):
		s.metrics.RecordRedemption("rejected")
		return appErrors.Clone(appErrors.ErrNotFound, "reward is not available")
	case errors.Is(err, repository.ErrRequestIDReused):
		s.metrics.RecordRedemption("rejected")
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "request id already used for another redemption")
	default:
		s.metrics.RecordRedemption("error")
		return internalError(err, "failed to redeem reward")
	}
}

func (s *RewardService) notifyRedemption(ctx context.Context, student models.Student, reward models.Reward, balance int) {
	if s.notifier == nil {
		return
	}
	recipients := student.Recipients()
	inputs := make([]NotificationInput, 0, len(recipients))
	for _, userID := range recipients {
		inputs = append(inputs, NotificationInput{
			UserID:  userID,
			Type:    models.NotificationRewardRedeemed,
			Title:   "Reward redeemed",
			Content: fmt.Sprintf("%s redeemed %s for %d points", student.FullName, reward.Name, reward.PointCost),
			RelatedData: map[string]interface{}{
				"studentId": student.ID,
				"rewardId":  reward.ID,
				"balance":   balance,
			},
		})
	}
	s.notifier.Notify(ctx, inputs...)
}
