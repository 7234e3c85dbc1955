package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/pkg/changefeed"
	"github.com/noah-isme/sma-behavior-api/pkg/jobs"
)

// JobTypeClassRebuild rebuilds every snapshot and the stored ranks of a class.
const JobTypeClassRebuild = "class_rebuild"

type jobEnqueuer interface {
	Enqueue(job jobs.Job) (bool, error)
}

type classRebuilder interface {
	RebuildClass(ctx context.Context, classID string) error
}

// InvalidationService reacts to change signals by dropping cached views and
// scheduling a class rebuild. Handling is idempotent; redelivered signals
// coalesce into the pending rebuild.
type InvalidationService struct {
	cache   *CacheService
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewInvalidationService constructs the service.
func NewInvalidationService(cache *CacheService, queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger) *InvalidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationService{cache: cache, queue: queue, metrics: metrics, logger: logger}
}

// Attach subscribes the service to feed.
func (s *InvalidationService) Attach(ctx context.Context, feed changefeed.Feed) error {
	if feed == nil {
		return errors.New("change feed is required")
	}
	return feed.Subscribe(ctx, s.HandleSignal)
}

// HandleSignal invalidates the class's cached views and queues a rebuild.
func (s *InvalidationService) HandleSignal(ctx context.Context, sig changefeed.Signal) {
	s.metrics.RecordChangeSignal("in", string(sig.Reason))
	if err := s.cache.InvalidateClass(ctx, sig.ClassID); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("class_id", sig.ClassID), zap.Error(err))
	}
	if s.queue == nil {
		return
	}
	job := jobs.Job{
		Key:     fmt.Sprintf("class:%s", sig.ClassID),
		Type:    JobTypeClassRebuild,
		Payload: sig.ClassID,
	}
	if _, err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to queue class rebuild", zap.String("class_id", sig.ClassID), zap.Error(err))
	}
}

// RebuildHandler adapts a class rebuilder to the job queue.
func RebuildHandler(rebuilder classRebuilder, cache *CacheService) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		classID, ok := job.Payload.(string)
		if !ok || classID == "" {
			return fmt.Errorf("job %s: missing class id", job.ID)
		}
		if err := rebuilder.RebuildClass(ctx, classID); err != nil {
			return err
		}
		return cache.InvalidateClass(ctx, classID)
	}
}
