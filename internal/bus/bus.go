// Package bus is the in-process publish/subscribe hub the storefront modules
// use to talk to each other without direct calls.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrClosed is returned by PublishAsync once Close has been called.
var ErrClosed = errors.New("bus closed")

// Envelope is one message on the bus. Requests carry RequestID; replies
// echo it back together with either Payload or Error.
type Envelope struct {
	Topic     Topic
	RequestID string
	Payload   any
	Error     string
}

// Handler receives every envelope published on the topic it subscribed to.
type Handler func(ctx context.Context, env Envelope) error

type handlerEntry struct {
	id      uint64
	handler Handler
}

// Subscription is returned by Subscribe; Unsubscribe removes exactly that handler.
type Subscription struct {
	id    uint64
	topic Topic
	bus   *Bus
}

func (s *Subscription) Unsubscribe() {
	s.bus.removeSubscription(s.topic, s.id)
}

// Bus delivers each published envelope to every subscriber of its topic,
// synchronously and in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]handlerEntry
	nextID   atomic.Uint64
	logger   *zap.Logger

	asyncMu  sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[Topic][]handlerEntry),
		logger:   logger,
	}
}

func (b *Bus) Subscribe(topic Topic, handler Handler) *Subscription {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return &Subscription{id: id, topic: topic, bus: b}
}

func (b *Bus) removeSubscription(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[topic]
	for i, e := range entries {
		if e.id == id {
			b.handlers[topic] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(b.handlers[topic]) == 0 {
		delete(b.handlers, topic)
	}
}

// SubscriberCount reports how many handlers listen on topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

// Publish hands env to every subscriber on the caller's goroutine. A failing
// handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(ctx context.Context, env Envelope) {
	b.mu.RLock()
	entries := make([]handlerEntry, len(b.handlers[env.Topic]))
	copy(entries, b.handlers[env.Topic])
	b.mu.RUnlock()

	for _, e := range entries {
		if err := b.deliver(ctx, e.handler, env); err != nil {
			b.logger.Error("Bus handler failed",
				zap.String("topic", string(env.Topic)),
				zap.String("request_id", env.RequestID),
				zap.Error(err),
			)
		}
	}
}

// PublishAsync runs Publish on its own goroutine and returns at once. The
// delivery keeps the values of ctx but not its cancellation, so it outlives
// the request that triggered it.
func (b *Bus) PublishAsync(ctx context.Context, env Envelope) error {
	b.asyncMu.Lock()
	if b.closed {
		b.asyncMu.Unlock()
		return ErrClosed
	}
	b.inFlight.Add(1)
	b.asyncMu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer b.inFlight.Done()
		b.Publish(detached, env)
	}()
	return nil
}

// Close refuses new async publishes and waits for the running ones until
// ctx ends.
func (b *Bus) Close(ctx context.Context) error {
	b.asyncMu.Lock()
	b.closed = true
	b.asyncMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for async deliveries: %w", ctx.Err())
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, env)
}
