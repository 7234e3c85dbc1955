package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

type categoryStub struct {
	created   dto.CreateCategoryRequest
	listClass string
	err       error
}

func (s *categoryStub) Create(ctx context.Context, req dto.CreateCategoryRequest) (*models.BehaviorCategory, error) {
	s.created = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.BehaviorCategory{ID: "c1", ClassID: req.ClassID, Name: req.Name, PointValue: req.PointValue, Type: models.CategoryType(req.Type)}, nil
}

func (s *categoryStub) List(ctx context.Context, classID string) ([]models.BehaviorCategory, error) {
	s.listClass = classID
	if s.err != nil {
		return nil, s.err
	}
	return []models.BehaviorCategory{{ID: "c1", ClassID: classID}}, nil
}

func TestCategoryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stub := &categoryStub{}
	h := NewCategoryHandler(stub)
	router := gin.New()
	router.GET("/categories", h.List)
	router.POST("/categories", h.Create)

	w := serve(router, http.MethodGet, "/categories?classId=7A", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7A", stub.listClass)
	assert.Contains(t, w.Body.String(), `"id":"c1"`)

	w = serve(router, http.MethodPost, "/categories", `{"classId":"7A","name":"Late","pointValue":-2,"type":"negative"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, -2, stub.created.PointValue)

	w = serve(router, http.MethodPost, "/categories", `{"classId":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	stub.err = appErrors.Clone(appErrors.ErrValidation, "positive categories need a non-negative point value")
	w = serve(router, http.MethodPost, "/categories", `{"classId":"7A","name":"Odd","pointValue":-1,"type":"positive"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
