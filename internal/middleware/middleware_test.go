package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-behavior-api/internal/models"
	"github.com/noah-isme/sma-behavior-api/internal/service"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
	"github.com/noah-isme/sma-behavior-api/pkg/logger"
)

type staticValidator struct {
	claims *models.JWTClaims
}

func (v staticValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func doRequest(router *gin.Engine, method, target, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	claims := &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	router := gin.New()
	router.GET("/me", JWT(staticValidator{claims: claims}), func(c *gin.Context) {
		actor, _ := c.Get(logger.ContextActorKey)
		c.String(http.StatusOK, "%s:%v", Claims(c).UserID, actor)
	})

	w := doRequest(router, http.MethodGet, "/me", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t1:t1", w.Body.String())

	for name, header := range map[string]string{
		"missing":  "",
		"scheme":   "Basic good",
		"empty":    "Bearer ",
		"rejected": "Bearer bad",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, doRequest(router, http.MethodGet, "/me", header).Code)
		})
	}
}

func TestRBACStaffOrSelf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	withClaims := func(claims *models.JWTClaims) *gin.Engine {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			if claims != nil {
				c.Set(ContextUserKey, claims)
			}
		})
		router.GET("/students/:id/totals", StaffOrSelf(), func(c *gin.Context) { c.Status(http.StatusOK) })
		router.POST("/behaviors", RequireRoles(models.RoleTeacher, models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusCreated) })
		return router
	}

	teacher := withClaims(&models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	assert.Equal(t, http.StatusOK, doRequest(teacher, http.MethodGet, "/students/s1/totals", "").Code)
	assert.Equal(t, http.StatusCreated, doRequest(teacher, http.MethodPost, "/behaviors", "").Code)

	parent := withClaims(&models.JWTClaims{UserID: "p1", Role: models.RoleParent, StudentIDs: []string{"s1"}})
	assert.Equal(t, http.StatusOK, doRequest(parent, http.MethodGet, "/students/s1/totals", "").Code)
	assert.Equal(t, http.StatusForbidden, doRequest(parent, http.MethodGet, "/students/s2/totals", "").Code)
	assert.Equal(t, http.StatusForbidden, doRequest(parent, http.MethodPost, "/behaviors", "").Code)

	anonymous := withClaims(nil)
	assert.Equal(t, http.StatusUnauthorized, doRequest(anonymous, http.MethodGet, "/students/s1/totals", "").Code)
}

func TestAuditLogsSuccessfulMutationsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	})
	router.DELETE("/behaviors/:id", Audit(zap.New(core), "delete", "behavior_event"), func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.AbortWithError(http.StatusNotFound, errors.New("not found"))
			return
		}
		c.Status(http.StatusNoContent)
	})

	doRequest(router, http.MethodDelete, "/behaviors/e1", "")
	doRequest(router, http.MethodDelete, "/behaviors/missing", "")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "t1", fields["actor_id"])
	assert.Equal(t, "e1", fields["resource_id"])
	assert.Equal(t, "delete", fields["action"])
}

func TestMetricsSkipsProbeRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metricsSvc := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metricsSvc, "/health"))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/classes/:classId/leaderboard", func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(router, http.MethodGet, "/health", "")
	doRequest(router, http.MethodGet, "/classes/7A/leaderboard", "")
	doRequest(router, http.MethodGet, "/nowhere", "")

	assert.Equal(t, uint64(2), metricsSvc.Snapshot().RequestsTotal)
}
