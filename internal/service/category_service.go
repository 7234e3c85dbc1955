package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

type categoryRepository interface {
	Create(ctx context.Context, category *models.BehaviorCategory) error
	ListByClass(ctx context.Context, classID string) ([]models.BehaviorCategory, error)
}

// CategoryService manages behaviour categories.
type CategoryService struct {
	repo      categoryRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCategoryService constructs the service.
func NewCategoryService(repo categoryRepository, validate *validator.Validate, logger *zap.Logger) *CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{repo: repo, validator: ensureValidator(validate), logger: logger}
}

// Create adds a category after checking its point value matches its type.
func (s *CategoryService) Create(ctx context.Context, req dto.CreateCategoryRequest) (*models.BehaviorCategory, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	categoryType := models.CategoryType(req.Type)
	if !categoryType.AcceptsPoints(req.PointValue) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "point value sign does not match category type")
	}
	category := &models.BehaviorCategory{
		ClassID:    req.ClassID,
		Name:       req.Name,
		PointValue: req.PointValue,
		Type:       categoryType,
		Icon:       req.Icon,
		Color:      req.Color,
	}
	if err := s.repo.Create(ctx, category); err != nil {
		return nil, internalError(err, "failed to create category")
	}
	return category, nil
}

// List returns a class's categories.
func (s *CategoryService) List(ctx context.Context, classID string) ([]models.BehaviorCategory, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	categories, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to list categories")
	}
	return categories, nil
}
