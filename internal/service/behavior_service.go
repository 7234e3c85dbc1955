package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	"github.com/noah-isme/sma-behavior-api/pkg/changefeed"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

type behaviorRepository interface {
	Append(ctx context.Context, event *models.BehaviorEvent) (string, error)
	FindByID(ctx context.Context, id string) (*models.BehaviorEvent, error)
	List(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, int, error)
	Delete(ctx context.Context, id string) error
}

type categoryFinder interface {
	FindByID(ctx context.Context, id string) (*models.BehaviorCategory, error)
}

type ledgerProgress interface {
	AllTimeTotals(ctx context.Context, studentID, classID string) (gamification.Totals, error)
	RebuildStudent(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error)
}

type badgeEvaluator interface {
	EvaluateAndAward(ctx context.Context, student *models.Student, totals gamification.Totals) ([]models.Badge, error)
}

// BehaviorService appends and removes ledger events and runs their
// consequences: snapshot rebuild, badge evaluation, notification and change
// signal.
type BehaviorService struct {
	repo       behaviorRepository
	categories categoryFinder
	students   studentReader
	progress   ledgerProgress
	badges     badgeEvaluator
	notifier   notifier
	changes    changePublisher
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewBehaviorService constructs the service.
func NewBehaviorService(repo behaviorRepository, categories categoryFinder, students studentReader, progress ledgerProgress, badges badgeEvaluator, notify notifier, changes changePublisher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *BehaviorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if changes == nil {
		changes = discardChanges{}
	}
	return &BehaviorService{
		repo:       repo,
		categories: categories,
		students:   students,
		progress:   progress,
		badges:     badges,
		notifier:   notify,
		changes:    changes,
		validator:  ensureValidator(validate),
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// LogBehavior appends one event for a student. Points default to the
// category's value; explicit points must carry the category's sign.
func (s *BehaviorService) LogBehavior(ctx context.Context, teacherID string, req dto.LogBehaviorRequest) (*dto.LogBehaviorResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	student, err := resolveStudent(ctx, s.students, req.StudentID, req.ClassID)
	if err != nil {
		return nil, err
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is not active")
	}
	category, err := s.categories.FindByID(ctx, req.CategoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, internalError(err, "failed to load category")
	}
	if category.ClassID != student.ClassID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found in class")
	}

	points := category.PointValue
	if req.Points != nil {
		points = *req.Points
	}
	if !category.Type.AcceptsPoints(points) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("points %d do not match %s category", points, category.Type))
	}

	event := &models.BehaviorEvent{
		StudentID:  student.ID,
		ClassID:    student.ClassID,
		CategoryID: category.ID,
		TeacherID:  teacherID,
		Points:     points,
		Note:       req.Note,
		CreatedAt:  s.now().UTC(),
	}
	if _, err := s.repo.Append(ctx, event); err != nil {
		return nil, internalError(err, "failed to log behavior")
	}
	s.metrics.RecordBehaviorLogged(string(category.Type))

	// The event is committed; everything below is best-effort.
	snap, err := s.progress.RebuildStudent(ctx, student.ID, student.ClassID)
	if err != nil {
		s.logger.Warn("snapshot rebuild after log failed", zap.String("student_id", student.ID), zap.Error(err))
		snap = nil
	}

	var totals *gamification.Totals
	computed, err := s.progress.AllTimeTotals(ctx, student.ID, student.ClassID)
	switch {
	case err == nil:
		totals = &computed
	case snap != nil:
		s.logger.Warn("totals after log failed, using snapshot", zap.String("student_id", student.ID), zap.Error(err))
		totals = &gamification.Totals{Total: snap.TotalPoints, GoodCount: snap.GoodBehaviorCount, BadCount: snap.BadBehaviorCount}
	default:
		s.logger.Warn("totals after log failed", zap.String("student_id", student.ID), zap.Error(err))
	}

	awarded := []models.Badge{}
	if totals != nil {
		earned, err := s.badges.EvaluateAndAward(ctx, student, *totals)
		if err != nil {
			s.logger.Warn("badge evaluation failed", zap.String("student_id", student.ID), zap.Error(err))
		} else if earned != nil {
			awarded = earned
		}
	}

	s.notifyLogged(ctx, *student, *category, points)
	s.changes.Publish(ctx, student.ClassID, student.ID, changefeed.ReasonBehaviorLogged)

	return &dto.LogBehaviorResponse{Event: *event, Totals: totals, AwardedBadges: awarded}, nil
}

// DeleteBehavior hard deletes an event and rebuilds the student's snapshot.
// Badges already awarded are kept.
func (s *BehaviorService) DeleteBehavior(ctx context.Context, id string) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "event id is required")
	}
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "behavior event not found")
		}
		return internalError(err, "failed to load behavior event")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "behavior event not found")
		}
		return internalError(err, "failed to delete behavior event")
	}
	if _, err := s.progress.RebuildStudent(ctx, event.StudentID, event.ClassID); err != nil {
		s.logger.Warn("snapshot rebuild after delete failed", zap.String("student_id", event.StudentID), zap.Error(err))
	}
	s.changes.Publish(ctx, event.ClassID, event.StudentID, changefeed.ReasonBehaviorDeleted)
	return nil
}

// List returns behaviour events newest first with pagination.
func (s *BehaviorService) List(ctx context.Context, req dto.BehaviorListRequest) ([]models.BehaviorEvent, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err)
	}
	if req.StudentID == "" && req.ClassID == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "studentId or classId is required")
	}
	filter := models.BehaviorEventFilter{
		StudentID:  req.StudentID,
		ClassID:    req.ClassID,
		CategoryID: req.CategoryID,
		DateFrom:   req.DateFrom,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}
	if req.DateTo != nil {
		end := req.DateTo.AddDate(0, 0, 1)
		filter.DateTo = &end
	}
	if filter.DateFrom != nil && filter.DateTo != nil && !filter.DateFrom.Before(*filter.DateTo) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "dateFrom must not be after dateTo")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list behavior events")
	}
	return events, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *BehaviorService) notifyLogged(ctx context.Context, student models.Student, category models.BehaviorCategory, points int) {
	if s.notifier == nil {
		return
	}
	recipients := student.Recipients()
	inputs := make([]NotificationInput, 0, len(recipients))
	for _, userID := range recipients {
		inputs = append(inputs, NotificationInput{
			UserID:  userID,
			Type:    models.NotificationBehaviorLogged,
			Title:   "Behavior recorded",
			Content: fmt.Sprintf("%s: %s (%+d points)", student.FullName, category.Name, points),
			RelatedData: map[string]interface{}{
				"studentId":  student.ID,
				"categoryId": category.ID,
				"points":     points,
			},
		})
	}
	s.notifier.Notify(ctx, inputs...)
}
