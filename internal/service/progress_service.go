package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/internal/dto"
	"github.com/noah-isme/sma-behavior-api/internal/gamification"
	"github.com/noah-isme/sma-behavior-api/internal/models"
)

type eventLister interface {
	ListAll(ctx context.Context, filter models.BehaviorEventFilter) ([]models.BehaviorEvent, error)
}

type snapshotStore interface {
	Rebuild(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error)
	Get(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error)
	UpdateRanks(ctx context.Context, classID string, ranks map[string]int) error
}

// ProgressService derives per-student totals and streaks from the ledger and
// keeps the point snapshots in step with it.
type ProgressService struct {
	students  studentReader
	events    eventLister
	snapshots snapshotStore
	cache     *CacheService
	metrics   *MetricsService
	policy    gamification.Policy
	logger    *zap.Logger
	now       func() time.Time
}

// NewProgressService constructs the service.
func NewProgressService(students studentReader, events eventLister, snapshots snapshotStore, cache *CacheService, metrics *MetricsService, policy gamification.Policy, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		students:  students,
		events:    events,
		snapshots: snapshots,
		cache:     cache,
		metrics:   metrics,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// GetTotals returns all-time, weekly and monthly totals together with the
// redeemable balance. classID may be empty to use the student's class.
func (s *ProgressService) GetTotals(ctx context.Context, studentID, classID string) (*dto.StudentTotals, error) {
	student, err := resolveStudent(ctx, s.students, studentID, classID)
	if err != nil {
		return nil, err
	}
	key := totalsCacheKey(student.ClassID, student.ID)
	var cached dto.StudentTotals
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	totals, err := s.AllTimeTotals(ctx, student.ID, student.ClassID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshots.Get(ctx, student.ID, student.ClassID)
	if errors.Is(err, sql.ErrNoRows) {
		snap, err = s.RebuildStudent(ctx, student.ID, student.ClassID)
	}
	if err != nil {
		return nil, internalError(err, "failed to load point snapshot")
	}

	result := &dto.StudentTotals{
		StudentID:   student.ID,
		ClassID:     student.ClassID,
		Totals:      totals,
		SpentPoints: snap.SpentPoints,
		Balance:     gamification.Balance(totals.Total, snap.SpentPoints),
		Rank:        snap.Rank,
		WindowMode:  string(s.policy.Mode),
		ComputedAt:  s.now().UTC(),
	}
	_ = s.cache.Set(ctx, key, result, 0)
	return result, nil
}

// AllTimeTotals recomputes the student's totals from every event in the class.
func (s *ProgressService) AllTimeTotals(ctx context.Context, studentID, classID string) (gamification.Totals, error) {
	events, err := s.events.ListAll(ctx, models.BehaviorEventFilter{StudentID: studentID, ClassID: classID})
	if err != nil {
		return gamification.Totals{}, internalError(err, "failed to load behavior events")
	}
	return gamification.ComputeTotals(events, gamification.Range{}, s.policy, s.now()), nil
}

// GetStreak returns the student's consecutive positive day streaks.
func (s *ProgressService) GetStreak(ctx context.Context, studentID, classID string) (*dto.StudentStreak, error) {
	student, err := resolveStudent(ctx, s.students, studentID, classID)
	if err != nil {
		return nil, err
	}
	key := streakCacheKey(student.ClassID, student.ID)
	var cached dto.StudentStreak
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	events, err := s.events.ListAll(ctx, models.BehaviorEventFilter{StudentID: student.ID, ClassID: student.ClassID})
	if err != nil {
		return nil, internalError(err, "failed to load behavior events")
	}
	result := &dto.StudentStreak{
		StudentID: student.ID,
		ClassID:   student.ClassID,
		Streak:    gamification.ComputeStreak(events, s.policy.Location),
	}
	_ = s.cache.Set(ctx, key, result, 0)
	return result, nil
}

// RebuildStudent overwrites the student's snapshot from source rows.
func (s *ProgressService) RebuildStudent(ctx context.Context, studentID, classID string) (*models.PointSnapshot, error) {
	start := time.Now()
	snap, err := s.snapshots.Rebuild(ctx, studentID, classID)
	s.metrics.ObserveSnapshotRebuild(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// RebuildClass rebuilds every active student's snapshot and refreshes the
// stored all-time ranks. Students whose rebuild fails are skipped and the
// first error is returned after the pass completes.
func (s *ProgressService) RebuildClass(ctx context.Context, classID string) error {
	students, err := s.students.ListByClass(ctx, classID)
	if err != nil {
		return internalError(err, "failed to load class roster")
	}
	var firstErr error
	for _, student := range students {
		if _, err := s.RebuildStudent(ctx, student.ID, classID); err != nil {
			s.logger.Warn("snapshot rebuild failed",
				zap.String("class_id", classID),
				zap.String("student_id", student.ID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	events, err := s.events.ListAll(ctx, models.BehaviorEventFilter{ClassID: classID})
	if err != nil {
		return internalError(err, "failed to load class events")
	}
	entries := gamification.Rank(students, events, gamification.Range{}, nil)
	ranks := make(map[string]int, len(entries))
	for _, e := range entries {
		ranks[e.StudentID] = e.Rank
	}
	if err := s.snapshots.UpdateRanks(ctx, classID, ranks); err != nil {
		return internalError(err, "failed to update ranks")
	}
	_ = s.cache.InvalidateClass(ctx, classID)
	if firstErr != nil {
		return internalError(firstErr, "failed to rebuild some snapshots")
	}
	return nil
}
