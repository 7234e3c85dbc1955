package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// NotificationInput describes one notification to store.
type NotificationInput struct {
	UserID      string
	Type        models.NotificationType
	Title       string
	Content     string
	RelatedData interface{}
}

// NotificationService stores advisory notifications. Storing one never blocks
// or rolls back the ledger write that triggered it.
type NotificationService struct {
	repo      notificationRepository
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationRepository, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, validator: ensureValidator(validate), metrics: metrics, logger: logger}
}

// Emit stores a single notification.
func (s *NotificationService) Emit(ctx context.Context, in NotificationInput) (*models.Notification, error) {
	if in.UserID == "" || in.Type == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "notification requires user and type")
	}
	n := &models.Notification{
		UserID:  in.UserID,
		Type:    in.Type,
		Title:   in.Title,
		Content: in.Content,
	}
	if in.RelatedData != nil {
		raw, err := json.Marshal(in.RelatedData)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification data")
		}
		n.RelatedData = raw
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, internalError(err, "failed to store notification")
	}
	return n, nil
}

// Notify attempts every input and reports how many were stored. Failures are
// logged and counted, never returned.
func (s *NotificationService) Notify(ctx context.Context, inputs ...NotificationInput) int {
	if s == nil {
		return 0
	}
	stored := 0
	for _, in := range inputs {
		if _, err := s.Emit(ctx, in); err != nil {
			s.metrics.RecordNotificationFailure()
			s.logger.Warn("failed to store notification",
				zap.String("user_id", in.UserID),
				zap.String("type", string(in.Type)),
				zap.Error(err),
			)
			continue
		}
		stored++
	}
	return stored
}

// List returns the caller's notifications newest first.
func (s *NotificationService) List(ctx context.Context, userID string, req dto.NotificationListRequest) ([]models.Notification, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err)
	}
	filter := models.NotificationFilter{UserID: userID, UnreadOnly: req.UnreadOnly, Page: req.Page, PageSize: req.PageSize}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list notifications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// MarkRead flags one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return internalError(err, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, internalError(err, "failed to mark notifications read")
	}
	return updated, nil
}
