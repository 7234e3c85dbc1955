package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-behavior-api/api/swagger"
	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/handler"
	"github.com/noah-isme/sma-behavior-api/internal/middleware"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	"github.com/noah-isme/sma-behavior-api/internal/repository"
	"github.com/noah-isme/sma-behavior-api/internal/service"
	"github.com/noah-isme/sma-behavior-api/pkg/cache"
	"github.com/noah-isme/sma-behavior-api/pkg/changefeed"
	"github.com/noah-isme/sma-behavior-api/pkg/config"
	"github.com/noah-isme/sma-behavior-api/pkg/database"
	"github.com/noah-isme/sma-behavior-api/pkg/jobs"
	"github.com/noah-isme/sma-behavior-api/pkg/keylock"
	"github.com/noah-isme/sma-behavior-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-behavior-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-behavior-api/pkg/middleware/requestid"
)

// @title SMA Behavior API
// @version 1.0.0
// @description Behaviour ledger and gamification engine
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type handlers struct {
	behavior      *handler.BehaviorHandler
	category      *handler.CategoryHandler
	leaderboard   *handler.LeaderboardHandler
	student       *handler.StudentProgressHandler
	catalog       *handler.CatalogHandler
	notifications *handler.NotificationHandler
	metrics       *handler.MetricsHandler
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled || cfg.ChangeFeed.Driver == config.ChangeFeedRedis {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	feed, err := newChangeFeed(cfg.ChangeFeed, redisClient, logr)
	if err != nil {
		logr.Fatal("init change feed", zap.Error(err))
	}
	defer feed.Close()

	policy := gamification.Policy{
		Mode:     gamification.WindowMode(cfg.Engine.WindowMode),
		Location: cfg.Engine.Location(),
	}
	validate := service.NewValidator()

	studentRepo := repository.NewStudentRepository(db)
	behaviorRepo := repository.NewBehaviorRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	changes := service.NewChangePublisher(feed, cacheSvc, metricsSvc, logr)
	progressSvc := service.NewProgressService(studentRepo, behaviorRepo, snapshotRepo, cacheSvc, metricsSvc, policy, logr)
	notificationSvc := service.NewNotificationService(repository.NewNotificationRepository(db), validate, metricsSvc, logr)
	badgeSvc := service.NewBadgeService(repository.NewBadgeRepository(db), studentRepo, progressSvc, notificationSvc, changes, validate, metricsSvc, logr)
	rewardSvc := service.NewRewardService(repository.NewRewardRepository(db), studentRepo, progressSvc, keylock.New(), notificationSvc, changes, validate, metricsSvc, logr)
	behaviorSvc := service.NewBehaviorService(behaviorRepo, categoryRepo, studentRepo, progressSvc, badgeSvc, notificationSvc, changes, validate, metricsSvc, logr)
	categorySvc := service.NewCategoryService(categoryRepo, validate, logr)
	leaderboardSvc := service.NewLeaderboardService(studentRepo, behaviorRepo, repository.NewLeaderboardRepository(db), cacheSvc, policy, logr)

	rebuildQueue := jobs.NewQueue("snapshot-rebuild", service.RebuildHandler(progressSvc, cacheSvc), jobs.QueueConfig{
		Workers:    cfg.Snapshots.Workers,
		MaxRetries: cfg.Snapshots.Retries,
		RetryDelay: cfg.Snapshots.RetryDelay,
		Logger:     logr,
	})
	rebuildQueue.Start(ctx)
	defer rebuildQueue.Stop()

	invalidationSvc := service.NewInvalidationService(cacheSvc, rebuildQueue, metricsSvc, logr)
	if err := invalidationSvc.Attach(ctx, feed); err != nil {
		logr.Fatal("subscribe to change feed", zap.Error(err))
	}

	verifier, err := service.NewTokenVerifier(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	if err != nil {
		logr.Fatal("init token verifier", zap.Error(err))
	}

	h := handlers{
		behavior:      handler.NewBehaviorHandler(behaviorSvc),
		category:      handler.NewCategoryHandler(categorySvc),
		student:       handler.NewStudentProgressHandler(progressSvc, badgeSvc, rewardSvc),
		catalog:       handler.NewCatalogHandler(badgeSvc, rewardSvc),
		notifications: handler.NewNotificationHandler(notificationSvc),
		metrics:       handler.NewMetricsHandler(metricsSvc),
	}
	h.leaderboard = handler.NewLeaderboardHandler(leaderboardSvc, nil)
	if cfg.Exports.Enabled {
		h.leaderboard = handler.NewLeaderboardHandler(leaderboardSvc, service.NewExportService(leaderboardSvc, logr))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics", "/health", "/ready"))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), h, verifier, logr, cfg.Exports.Enabled)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "changefeed", cfg.ChangeFeed.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown", zap.Error(err))
	}
	logr.Info("server stopped")
}

func registerRoutes(api *gin.RouterGroup, h handlers, verifier middleware.TokenValidator, logr *zap.Logger, exportsEnabled bool) {
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(logr, action, resource)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(verifier))

	behaviors := secured.Group("/behaviors", staff)
	behaviors.POST("", audit("create", "behavior_event"), h.behavior.Log)
	behaviors.GET("", h.behavior.List)
	behaviors.DELETE("/:id", audit("delete", "behavior_event"), h.behavior.Delete)

	categories := secured.Group("/categories")
	categories.GET("", h.category.List)
	categories.POST("", staff, audit("create", "behavior_category"), h.category.Create)

	classes := secured.Group("/classes/:classId")
	classes.GET("/leaderboard", h.leaderboard.Get)
	if exportsEnabled {
		classes.GET("/leaderboard/export", staff, h.leaderboard.Export)
	}

	students := secured.Group("/students/:id")
	students.GET("/totals", middleware.StaffOrSelf(), h.student.Totals)
	students.GET("/streak", middleware.StaffOrSelf(), h.student.Streak)
	students.GET("/badges", middleware.StaffOrSelf(), h.student.Badges)
	students.GET("/badges/eligible", middleware.StaffOrSelf(), h.student.EligibleBadges)
	students.POST("/badges", staff, audit("award", "student_badge"), h.student.AwardBadge)
	students.GET("/rewards/affordable", middleware.StaffOrSelf(), h.student.AffordableRewards)
	students.GET("/redemptions", middleware.StaffOrSelf(), h.student.Redemptions)
	students.POST("/redemptions", staff, audit("redeem", "student_reward"), h.student.Redeem)

	badges := secured.Group("/badges")
	badges.GET("", h.catalog.ListBadges)
	badges.POST("", staff, audit("create", "badge"), h.catalog.CreateBadge)

	rewards := secured.Group("/rewards")
	rewards.GET("", h.catalog.ListRewards)
	rewards.POST("", staff, audit("create", "reward"), h.catalog.CreateReward)

	notifications := secured.Group("/notifications")
	notifications.GET("", h.notifications.List)
	notifications.PATCH("/:id/read", h.notifications.MarkRead)
	notifications.POST("/read-all", h.notifications.MarkAllRead)

	secured.GET("/metrics/summary", staff, h.metrics.Summary)
}

func newChangeFeed(cfg config.ChangeFeedConfig, client *redis.Client, logr *zap.Logger) (changefeed.Feed, error) {
	switch cfg.Driver {
	case config.ChangeFeedRedis:
		return changefeed.NewRedisFeed(client, cfg.RedisChannel, logr)
	case config.ChangeFeedKafka:
		return changefeed.NewKafkaFeed(changefeed.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logr)
	default:
		return changefeed.NewMemoryFeed(logr), nil
	}
}
