package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

// NewValidator returns a validator with the engine's custom tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerValidators(v)
	return v
}

func registerValidators(v *validator.Validate) {
	_ = v.RegisterValidation("category_type", func(fl validator.FieldLevel) bool {
		return models.CategoryType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("time_window", func(fl validator.FieldLevel) bool {
		_, err := gamification.ParseWindow(fl.Field().String())
		return err == nil
	})
}

func ensureValidator(v *validator.Validate) *validator.Validate {
	if v == nil {
		return NewValidator()
	}
	registerValidators(v)
	return v
}

func validationError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

func internalError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

// resolveStudent loads the student and, when classID is set, checks the
// student belongs to that class.
func resolveStudent(ctx context.Context, students studentReader, studentID, classID string) (*models.Student, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	student, err := students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, internalError(err, "failed to load student")
	}
	if classID != "" && student.ClassID != classID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found in class")
	}
	return student, nil
}
