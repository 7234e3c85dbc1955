package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisPubSubClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisFeed broadcasts signals over a Redis Pub/Sub channel so every API
// instance invalidates its local view of the class.
type RedisFeed struct {
	client  redisPubSubClient
	channel string
	logger  *zap.Logger

	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
	closed bool
}

// NewRedisFeed constructs a Redis backed feed.
func NewRedisFeed(client redisPubSubClient, channel string, logger *zap.Logger) (*RedisFeed, error) {
	if client == nil {
		return nil, errors.New("changefeed: redis client is required")
	}
	if channel == "" {
		channel = "behavior:changes"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeed{client: client, channel: channel, logger: logger}, nil
}

// Publish sends the signal to the channel.
func (f *RedisFeed) Publish(ctx context.Context, sig Signal) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return ErrClosed
	}
	payload, err := encode(sig)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", f.channel, err)
	}
	return nil
}

// Subscribe starts a goroutine that delivers channel messages to handler until
// ctx is cancelled or the feed is closed.
func (f *RedisFeed) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("changefeed: nil handler")
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	pubsub := f.client.Subscribe(ctx, f.channel)
	f.subs = append(f.subs, pubsub)
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				sig, err := decode([]byte(msg.Payload))
				if err != nil {
					f.logger.Warn("dropping malformed change signal", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(ctx, sig)
			}
		}
	}()
	return nil
}

// Close unsubscribes every active subscription.
func (f *RedisFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.wg.Wait()
	return firstErr
}
