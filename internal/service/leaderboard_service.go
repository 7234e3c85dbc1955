package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-api/pkg/errors"
)

const (
	generationBaselineDepth = 2
	generationRetention     = 10
)

type generationStore interface {
	Latest(ctx context.Context, classID, window string, limit int) ([]models.LeaderboardGeneration, error)
	Save(ctx context.Context, gen *models.LeaderboardGeneration) error
	Prune(ctx context.Context, classID, window string, keep int) (int64, error)
}

// LeaderboardService ranks a class for a time window. Trends compare against
// the last persisted ranking whose standings differ from the current one, so
// repeated reads of an unchanged board keep reporting the last movement.
type LeaderboardService struct {
	students    studentReader
	events      eventLister
	generations generationStore
	cache       *CacheService
	policy      gamification.Policy
	logger      *zap.Logger
	now         func() time.Time
	group       singleflight.Group
	timeout     time.Duration
}

const leaderboardComputeTimeout = 30 * time.Second

// NewLeaderboardService constructs the service.
func NewLeaderboardService(students studentReader, events eventLister, generations generationStore, cache *CacheService, policy gamification.Policy, logger *zap.Logger) *LeaderboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaderboardService{
		students:    students,
		events:      events,
		generations: generations,
		cache:       cache,
		policy:      policy,
		logger:      logger,
		now:         time.Now,
		timeout:     leaderboardComputeTimeout,
	}
}

// GetLeaderboard returns the ranked roster for classID over window. Concurrent
// callers for the same class and window share one computation, which runs
// detached from any single caller's cancellation.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, classID, rawWindow string) (*dto.Leaderboard, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	window, err := gamification.ParseWindow(rawWindow)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid window")
	}

	key := leaderboardCacheKey(classID, string(window))
	var cached dto.Leaderboard
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		board, err := s.compute(shared, classID, window)
		if err != nil {
			return nil, err
		}
		_ = s.cache.Set(shared, key, board, 0)
		return board, nil
	})
	if err != nil {
		return nil, err
	}
	shared := value.(*dto.Leaderboard)
	out := *shared
	out.Entries = append([]models.LeaderboardEntry(nil), shared.Entries...)
	return &out, nil
}

func (s *LeaderboardService) compute(ctx context.Context, classID string, window gamification.Window) (*dto.Leaderboard, error) {
	now := s.now()
	rng := s.policy.Range(window, now)

	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to load class roster")
	}
	events, err := s.events.ListAll(ctx, models.BehaviorEventFilter{ClassID: classID, DateFrom: rng.Start})
	if err != nil {
		return nil, internalError(err, "failed to load class events")
	}
	entries := gamification.Rank(students, events, rng, nil)

	baseline, changed := s.baseline(ctx, classID, window, entries)
	entries = gamification.ApplyTrends(entries, baseline)
	if changed {
		s.persist(ctx, classID, window, entries, now)
	}

	board := &dto.Leaderboard{
		ClassID:     classID,
		Window:      string(window),
		WindowMode:  string(s.policy.Mode),
		From:        rng.Start,
		GeneratedAt: now.UTC(),
		Entries:     entries,
	}
	return board, nil
}

// baseline picks the ranking to compare against and reports whether the
// current ranking differs from the newest stored one.
func (s *LeaderboardService) baseline(ctx context.Context, classID string, window gamification.Window, current []models.LeaderboardEntry) ([]models.LeaderboardEntry, bool) {
	if s.generations == nil {
		return nil, false
	}
	gens, err := s.generations.Latest(ctx, classID, string(window), generationBaselineDepth)
	if err != nil {
		s.logger.Warn("failed to load leaderboard generations", zap.String("class_id", classID), zap.String("window", string(window)), zap.Error(err))
		return nil, false
	}
	if len(gens) == 0 {
		return nil, true
	}
	latest := s.decode(gens[0])
	if !gamification.SameStanding(current, latest) {
		return latest, true
	}
	if len(gens) > 1 {
		return s.decode(gens[1]), false
	}
	return nil, false
}

func (s *LeaderboardService) decode(gen models.LeaderboardGeneration) []models.LeaderboardEntry {
	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(gen.Entries, &entries); err != nil {
		s.logger.Warn("discarding unreadable leaderboard generation", zap.String("id", gen.ID), zap.Error(err))
		return nil
	}
	return entries
}

func (s *LeaderboardService) persist(ctx context.Context, classID string, window gamification.Window, entries []models.LeaderboardEntry, now time.Time) {
	raw, err := json.Marshal(entries)
	if err != nil {
		s.logger.Warn("failed to encode leaderboard generation", zap.Error(err))
		return
	}
	gen := &models.LeaderboardGeneration{ClassID: classID, Window: string(window), Entries: raw, ComputedAt: now.UTC()}
	if err := s.generations.Save(ctx, gen); err != nil {
		s.logger.Warn("failed to store leaderboard generation", zap.String("class_id", classID), zap.Error(err))
		return
	}
	if _, err := s.generations.Prune(ctx, classID, string(window), generationRetention); err != nil {
		s.logger.Warn("failed to prune leaderboard generations", zap.String("class_id", classID), zap.Error(err))
	}
}
