// Package changefeed carries "something changed for class X / student Y"
// signals between writers and the caches that derive views from behaviour
// events. Signals never carry authoritative data; receivers only invalidate.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reason describes the mutation that produced a signal.
type Reason string

const (
	ReasonBehaviorLogged  Reason = "behavior_logged"
	ReasonBehaviorDeleted Reason = "behavior_deleted"
	ReasonBadgeAwarded    Reason = "badge_awarded"
	ReasonRewardRedeemed  Reason = "reward_redeemed"
)

// ErrClosed is returned by feeds used after Close.
var ErrClosed = errors.New("changefeed: closed")

// Signal marks a class (and optionally one student) as stale.
type Signal struct {
	ClassID   string    `json:"class_id"`
	StudentID string    `json:"student_id,omitempty"`
	Reason    Reason    `json:"reason"`
	At        time.Time `json:"at"`
}

// Validate ensures the signal can be routed.
func (s Signal) Validate() error {
	if s.ClassID == "" {
		return errors.New("changefeed: signal requires class id")
	}
	return nil
}

// Handler reacts to a signal. Handlers must be idempotent: transports may redeliver.
type Handler func(ctx context.Context, sig Signal)

// Feed publishes and delivers invalidation signals.
type Feed interface {
	Publish(ctx context.Context, sig Signal) error
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

func encode(sig Signal) ([]byte, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("encode signal: %w", err)
	}
	return payload, nil
}

func decode(payload []byte) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	if err := sig.Validate(); err != nil {
		return Signal{}, err
	}
	return sig, nil
}

// MemoryFeed delivers signals synchronously to in-process subscribers.
type MemoryFeed struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
	logger   *zap.Logger
}

// NewMemoryFeed constructs an in-process feed.
func NewMemoryFeed(logger *zap.Logger) *MemoryFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryFeed{logger: logger}
}

// Publish fans the signal out to every subscriber.
func (f *MemoryFeed) Publish(ctx context.Context, sig Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if sig.At.IsZero() {
		sig.At = time.Now().UTC()
	}
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return ErrClosed
	}
	handlers := append([]Handler(nil), f.handlers...)
	f.mu.RUnlock()

	for _, h := range handlers {
		f.dispatch(ctx, h, sig)
	}
	return nil
}

func (f *MemoryFeed) dispatch(ctx context.Context, h Handler, sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("changefeed handler panicked", zap.Any("panic", r), zap.String("class_id", sig.ClassID))
		}
	}()
	h(ctx, sig)
}

// Subscribe registers a handler for subsequent publishes.
func (f *MemoryFeed) Subscribe(_ context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("changefeed: nil handler")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.handlers = append(f.handlers, handler)
	return nil
}

// Close stops delivery.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.handlers = nil
	return nil
}
