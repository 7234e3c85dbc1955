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
	"github.com/noah-isme/sma-behavior-api/pkg/changefeed"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

type badgeRepository interface {
	Create(ctx context.Context, badge *models.Badge) error
	FindByID(ctx context.Context, id string) (*models.Badge, error)
	ListByClass(ctx context.Context, classID string) ([]models.Badge, error)
	ListAwards(ctx context.Context, studentID string) ([]models.StudentBadge, error)
	ListAwardDetails(ctx context.Context, studentID string) ([]models.StudentBadgeDetail, error)
	Award(ctx context.Context, award *models.StudentBadge) (bool, error)
}

type totalsProvider interface {
	AllTimeTotals(ctx context.Context, studentID, classID string) (gamification.Totals, error)
}

type notifier interface {
	Notify(ctx context.Context, inputs ...NotificationInput) int
}

// BadgeService manages the badge catalog and awards.
type BadgeService struct {
	repo      badgeRepository
	students  studentReader
	totals    totalsProvider
	notifier  notifier
	changes   changePublisher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewBadgeService constructs the service.
func NewBadgeService(repo badgeRepository, students studentReader, totals totalsProvider, notify notifier, changes changePublisher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *BadgeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if changes == nil {
		changes = discardChanges{}
	}
	return &BadgeService{
		repo:      repo,
		students:  students,
		totals:    totals,
		notifier:  notify,
		changes:   changes,
		validator: ensureValidator(validate),
		metrics:   metrics,
		logger:    logger,
	}
}

// Create adds a badge to a class catalog.
func (s *BadgeService) Create(ctx context.Context, req dto.CreateBadgeRequest) (*models.Badge, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	reqType := models.RequirementType(req.RequirementType)
	if reqType != models.RequirementAchievement && req.RequirementValue <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requirement value must be positive")
	}
	badge := &models.Badge{
		ClassID:          req.ClassID,
		Name:             req.Name,
		Description:      req.Description,
		Icon:             req.Icon,
		RequirementType:  reqType,
		RequirementValue: req.RequirementValue,
	}
	if err := s.repo.Create(ctx, badge); err != nil {
		return nil, internalError(err, "failed to create badge")
	}
	return badge, nil
}

// ListCatalog returns the class's badge definitions.
func (s *BadgeService) ListCatalog(ctx context.Context, classID string) ([]models.Badge, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	badges, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to list badges")
	}
	return badges, nil
}

// ListStudentBadges returns the student's awards with badge details.
func (s *BadgeService) ListStudentBadges(ctx context.Context, studentID string) ([]models.StudentBadgeDetail, error) {
	if _, err := resolveStudent(ctx, s.students, studentID, ""); err != nil {
		return nil, err
	}
	details, err := s.repo.ListAwardDetails(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to list student badges")
	}
	return details, nil
}

// GetEligibleBadges returns badges the student currently qualifies for but
// does not hold. It never records an award.
func (s *BadgeService) GetEligibleBadges(ctx context.Context, studentID string) ([]models.Badge, error) {
	student, err := resolveStudent(ctx, s.students, studentID, "")
	if err != nil {
		return nil, err
	}
	totals, err := s.totals.AllTimeTotals(ctx, student.ID, student.ClassID)
	if err != nil {
		return nil, err
	}
	catalog, earned, err := s.catalogAndAwards(ctx, student)
	if err != nil {
		return nil, err
	}
	return pickBadges(catalog, gamification.Evaluate(totals, catalog, earned)), nil
}

// EvaluateAndAward records every automatic badge totals now qualify for. Each
// badge is attempted independently and both the award write and the
// notification are attempted even when the other fails. A failed notification
// never undoes its award. Only badges newly recorded by this call are
// returned.
func (s *BadgeService) EvaluateAndAward(ctx context.Context, student *models.Student, totals gamification.Totals) ([]models.Badge, error) {
	catalog, earned, err := s.catalogAndAwards(ctx, student)
	if err != nil {
		return nil, err
	}
	eligible := pickBadges(catalog, gamification.Evaluate(totals, catalog, earned))

	awarded := make([]models.Badge, 0, len(eligible))
	for _, badge := range eligible {
		created, err := s.repo.Award(ctx, &models.StudentBadge{StudentID: student.ID, BadgeID: badge.ID})
		if err != nil {
			s.logger.Warn("failed to award badge",
				zap.String("student_id", student.ID),
				zap.String("badge_id", badge.ID),
				zap.Error(err),
			)
			s.notifyAward(ctx, *student, badge)
			continue
		}
		if !created {
			continue
		}
		s.metrics.RecordBadgeAwarded("auto")
		s.notifyAward(ctx, *student, badge)
		awarded = append(awarded, badge)
	}
	if len(awarded) > 0 {
		s.changes.Publish(ctx, student.ClassID, student.ID, changefeed.ReasonBadgeAwarded)
	}
	return awarded, nil
}

// AwardBadge grants a badge by hand. Any requirement type may be awarded;
// awarding a held badge is a no-op reported with Created false.
func (s *BadgeService) AwardBadge(ctx context.Context, studentID, badgeID, awardedBy string) (*dto.AwardBadgeResponse, error) {
	if badgeID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "badge id is required")
	}
	student, err := resolveStudent(ctx, s.students, studentID, "")
	if err != nil {
		return nil, err
	}
	badge, err := s.repo.FindByID(ctx, badgeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "badge not found")
		}
		return nil, internalError(err, "failed to load badge")
	}
	if badge.ClassID != student.ClassID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "badge not found in student's class")
	}

	award := &models.StudentBadge{StudentID: student.ID, BadgeID: badge.ID}
	if awardedBy != "" {
		award.AwardedBy = &awardedBy
	}
	created, err := s.repo.Award(ctx, award)
	if err != nil {
		return nil, internalError(err, "failed to award badge")
	}
	if created {
		s.metrics.RecordBadgeAwarded("manual")
		s.notifyAward(ctx, *student, *badge)
		s.changes.Publish(ctx, student.ClassID, student.ID, changefeed.ReasonBadgeAwarded)
	}
	return &dto.AwardBadgeResponse{Badge: *badge, Created: created}, nil
}

func (s *BadgeService) catalogAndAwards(ctx context.Context, student *models.Student) ([]models.Badge, []models.StudentBadge, error) {
	catalog, err := s.repo.ListByClass(ctx, student.ClassID)
	if err != nil {
		return nil, nil, internalError(err, "failed to list badges")
	}
	earned, err := s.repo.ListAwards(ctx, student.ID)
	if err != nil {
		return nil, nil, internalError(err, "failed to list student badges")
	}
	return catalog, earned, nil
}

func (s *BadgeService) notifyAward(ctx context.Context, student models.Student, badge models.Badge) {
	if s.notifier == nil {
		return
	}
	recipients := student.Recipients()
	inputs := make([]NotificationInput, 0, len(recipients))
	for _, userID := range recipients {
		inputs = append(inputs, NotificationInput{
			UserID:  userID,
			Type:    models.NotificationBadgeEarned,
			Title:   "Badge earned",
			Content: fmt.Sprintf("%s earned the %s badge", student.FullName, badge.Name),
			RelatedData: map[string]string{
				"studentId": student.ID,
				"badgeId":   badge.ID,
			},
		})
	}
	s.notifier.Notify(ctx, inputs...)
}

func pickBadges(catalog []models.Badge, ids []string) []models.Badge {
	byID := make(map[string]models.Badge, len(catalog))
	for _, b := range catalog {
		byID[b.ID] = b
	}
	out := make([]models.Badge, 0, len(ids))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			out = append(out, b)
		}
	}
	return out
}
