package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-api/pkg/changefeed"
)

type signalPublisher interface {
	Publish(ctx context.Context, sig changefeed.Signal) error
}

type changePublisher interface {
	Publish(ctx context.Context, classID, studentID string, reason changefeed.Reason)
}

// ChangePublisher announces ledger mutations on the change feed. The local
// class cache is dropped before the signal goes out, so a read on this
// instance after its own write is always recomputed.
type ChangePublisher struct {
	feed    signalPublisher
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewChangePublisher constructs the publisher.
func NewChangePublisher(feed signalPublisher, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *ChangePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangePublisher{feed: feed, cache: cache, metrics: metrics, logger: logger}
}

// Publish drops the class views held by this instance, then emits a signal
// for the other instances. Errors are logged, never returned.
func (p *ChangePublisher) Publish(ctx context.Context, classID, studentID string, reason changefeed.Reason) {
	if p == nil || classID == "" {
		return
	}
	_ = p.cache.InvalidateClass(ctx, classID)
	if p.feed == nil {
		return
	}
	sig := changefeed.Signal{ClassID: classID, StudentID: studentID, Reason: reason, At: time.Now().UTC()}
	if err := p.feed.Publish(ctx, sig); err != nil {
		p.logger.Warn("change signal publish failed",
			zap.String("class_id", classID),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return
	}
	p.metrics.RecordChangeSignal("out", string(reason))
}

type discardChanges struct{}

func (discardChanges) Publish(context.Context, string, string, changefeed.Reason) {}
