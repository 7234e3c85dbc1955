package changefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig captures broker coordinates for the Kafka feed.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaFeed publishes signals keyed by class so a class's signals stay ordered
// within one partition.
type KafkaFeed struct {
	writer    messageWriter
	newReader func() messageReader
	logger    *zap.Logger

	mu      sync.Mutex
	readers []messageReader
	wg      sync.WaitGroup
	closed  bool
}

// NewKafkaFeed wires kafka-go writer and readers for the configured topic.
func NewKafkaFeed(cfg KafkaConfig, logger *zap.Logger) (*KafkaFeed, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("changefeed: kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	newReader := func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		})
	}
	return newKafkaFeed(writer, newReader, logger), nil
}

func newKafkaFeed(writer messageWriter, newReader func() messageReader, logger *zap.Logger) *KafkaFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaFeed{writer: writer, newReader: newReader, logger: logger}
}

// Publish writes the signal keyed by class id.
func (f *KafkaFeed) Publish(ctx context.Context, sig Signal) error {
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
	msg := kafka.Message{Key: []byte(sig.ClassID), Value: payload, Time: time.Now().UTC()}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Subscribe starts a consumer goroutine delivering signals to handler.
func (f *KafkaFeed) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("changefeed: nil handler")
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	reader := f.newReader()
	f.readers = append(f.readers, reader)
	f.wg.Add(1)
	f.mu.Unlock()

	go func() {
		defer f.wg.Done()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) || f.isClosed() {
					return
				}
				f.logger.Warn("kafka read failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
				continue
			}
			sig, err := decode(msg.Value)
			if err != nil {
				f.logger.Warn("dropping malformed change signal", zap.Int64("offset", msg.Offset), zap.Error(err))
				continue
			}
			handler(ctx, sig)
		}
	}()
	return nil
}

func (f *KafkaFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close flushes the writer and stops readers.
func (f *KafkaFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	readers := f.readers
	f.readers = nil
	f.mu.Unlock()

	var firstErr error
	for _, r := range readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.wg.Wait()
	if err := f.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
