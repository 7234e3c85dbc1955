package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFeedDeliversToSubscribers(t *testing.T) {
	feed := NewMemoryFeed(nil)
	var got []Signal
	require.NoError(t, feed.Subscribe(context.Background(), func(_ context.Context, sig Signal) {
		got = append(got, sig)
	}))
	require.NoError(t, feed.Subscribe(context.Background(), func(context.Context, Signal) {
		panic("boom")
	}))

	err := feed.Publish(context.Background(), Signal{ClassID: "7A", StudentID: "s1", Reason: ReasonBehaviorLogged})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7A", got[0].ClassID)
	assert.False(t, got[0].At.IsZero())

	assert.Error(t, feed.Publish(context.Background(), Signal{}))

	require.NoError(t, feed.Close())
	assert.ErrorIs(t, feed.Publish(context.Background(), Signal{ClassID: "7A"}), ErrClosed)
}

type fakeRedisClient struct {
	channel string
	payload interface{}
	err     error
}

func (f *fakeRedisClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload = message
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

func (f *fakeRedisClient) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return nil
}

func TestRedisFeedPublishEncodesSignal(t *testing.T) {
	client := &fakeRedisClient{}
	feed, err := NewRedisFeed(client, "", nil)
	require.NoError(t, err)

	require.NoError(t, feed.Publish(context.Background(), Signal{ClassID: "8B", Reason: ReasonRewardRedeemed}))
	assert.Equal(t, "behavior:changes", client.channel)

	var sig Signal
	require.NoError(t, json.Unmarshal(client.payload.([]byte), &sig))
	assert.Equal(t, "8B", sig.ClassID)
	assert.Equal(t, ReasonRewardRedeemed, sig.Reason)

	client.err = errors.New("conn refused")
	assert.Error(t, feed.Publish(context.Background(), Signal{ClassID: "8B"}))
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs   chan kafka.Message
	closed chan struct{}
	once   sync.Once
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-r.closed:
		return kafka.Message{}, errors.New("reader closed")
	case msg := <-r.msgs:
		return msg, nil
	}
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func TestKafkaFeedRoundTrip(t *testing.T) {
	writer := &fakeWriter{}
	reader := &fakeReader{msgs: make(chan kafka.Message, 4), closed: make(chan struct{})}
	feed := newKafkaFeed(writer, func() messageReader { return reader }, nil)

	received := make(chan Signal, 2)
	require.NoError(t, feed.Subscribe(context.Background(), func(_ context.Context, sig Signal) {
		received <- sig
	}))

	require.NoError(t, feed.Publish(context.Background(), Signal{ClassID: "9C", StudentID: "s9", Reason: ReasonBadgeAwarded}))
	require.Len(t, writer.msgs, 1)
	assert.Equal(t, []byte("9C"), writer.msgs[0].Key)

	reader.msgs <- kafka.Message{Value: []byte("not-json")}
	reader.msgs <- writer.msgs[0]

	select {
	case sig := <-received:
		assert.Equal(t, "s9", sig.StudentID)
	case <-time.After(time.Second):
		t.Fatal("signal not delivered")
	}

	require.NoError(t, feed.Close())
	assert.ErrorIs(t, feed.Publish(context.Background(), Signal{ClassID: "9C"}), ErrClosed)
}

func TestNewKafkaFeedRequiresBrokers(t *testing.T) {
	_, err := NewKafkaFeed(KafkaConfig{Topic: "t"}, nil)
	assert.Error(t, err)
}
