package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/middleware"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

type progressStub struct {
	lastStudent string
	lastClass   string
}

func (p *progressStub) GetTotals(ctx context.Context, studentID, classID string) (*dto.StudentTotals, error) {
	p.lastStudent, p.lastClass = studentID, classID
	return &dto.StudentTotals{StudentID: studentID, ClassID: "7A", Totals: gamification.Totals{Total: 12}, Balance: 7}, nil
}

func (p *progressStub) GetStreak(ctx context.Context, studentID, classID string) (*dto.StudentStreak, error) {
	return &dto.StudentStreak{StudentID: studentID, Streak: gamification.Streak{CurrentStreak: 3}}, nil
}

type badgeStub struct {
	awardResp *dto.AwardBadgeResponse
	awardedBy string
}

func (b *badgeStub) ListStudentBadges(ctx context.Context, studentID string) ([]models.StudentBadgeDetail, error) {
	return []models.StudentBadgeDetail{{BadgeName: "Helper"}}, nil
}

func (b *badgeStub) GetEligibleBadges(ctx context.Context, studentID string) ([]models.Badge, error) {
	return nil, appErrors.ErrNotFound
}

func (b *badgeStub) AwardBadge(ctx context.Context, studentID, badgeID, awardedBy string) (*dto.AwardBadgeResponse, error) {
	b.awardedBy = awardedBy
	return b.awardResp, nil
}

type rewardStub struct {
	redeemResp *dto.RedemptionResponse
	redeemErr  error
	lastReq    dto.RedeemRewardRequest
}

func (r *rewardStub) ListAffordable(ctx context.Context, studentID string) ([]models.Reward, error) {
	return []models.Reward{{ID: "r1", PointCost: 5}}, nil
}

func (r *rewardStub) ListRedemptions(ctx context.Context, studentID string) ([]models.StudentReward, error) {
	return []models.StudentReward{}, nil
}

func (r *rewardStub) RedeemReward(ctx context.Context, studentID string, req dto.RedeemRewardRequest) (*dto.RedemptionResponse, error) {
	r.lastReq = req
	return r.redeemResp, r.redeemErr
}

func progressRouter(progress *progressStub, badges *badgeStub, rewards *rewardStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewStudentProgressHandler(progress, badges, rewards)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	})
	router.GET("/students/:id/totals", h.Totals)
	router.GET("/students/:id/streak", h.Streak)
	router.GET("/students/:id/badges", h.Badges)
	router.GET("/students/:id/badges/eligible", h.EligibleBadges)
	router.POST("/students/:id/badges", h.AwardBadge)
	router.GET("/students/:id/rewards/affordable", h.AffordableRewards)
	router.GET("/students/:id/redemptions", h.Redemptions)
	router.POST("/students/:id/redemptions", h.Redeem)
	return router
}

func serve(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, target, nil)
	} else {
		req, _ = http.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestStudentProgressReads(t *testing.T) {
	progress := &progressStub{}
	router := progressRouter(progress, &badgeStub{}, &rewardStub{})

	w := serve(router, http.MethodGet, "/students/s1/totals?classId=7A", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", progress.lastStudent)
	assert.Equal(t, "7A", progress.lastClass)
	assert.Contains(t, w.Body.String(), `"balance":7`)

	w = serve(router, http.MethodGet, "/students/s1/streak", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"currentStreak":3`)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/students/s1/badges", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/students/s1/badges/eligible", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/students/s1/rewards/affordable", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/students/s1/redemptions", "").Code)
}

func TestStudentProgressAwardBadgeStatus(t *testing.T) {
	badges := &badgeStub{awardResp: &dto.AwardBadgeResponse{Badge: models.Badge{ID: "b1"}, Created: true}}
	router := progressRouter(&progressStub{}, badges, &rewardStub{})

	w := serve(router, http.MethodPost, "/students/s1/badges", `{"badgeId":"b1"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "t1", badges.awardedBy)

	badges.awardResp = &dto.AwardBadgeResponse{Badge: models.Badge{ID: "b1"}, Created: false}
	w = serve(router, http.MethodPost, "/students/s1/badges", `{"badgeId":"b1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStudentProgressRedeem(t *testing.T) {
	rewards := &rewardStub{redeemResp: &dto.RedemptionResponse{Redemption: models.StudentReward{ID: "sr1"}, Balance: 3}}
	router := progressRouter(&progressStub{}, &badgeStub{}, rewards)

	w := serve(router, http.MethodPost, "/students/s1/redemptions", `{"rewardId":"r1","requestId":"req-1"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "req-1", rewards.lastReq.RequestID)

	rewards.redeemResp.Replayed = true
	w = serve(router, http.MethodPost, "/students/s1/redemptions", `{"rewardId":"r1","requestId":"req-1"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	rewards.redeemErr = appErrors.InsufficientPoints(3, 10)
	w = serve(router, http.MethodPost, "/students/s1/redemptions", `{"rewardId":"r1","requestId":"req-2"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_POINTS")
}
