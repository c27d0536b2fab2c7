// Package events implements the in-process publish/subscribe bus that
// connects the trading components.
package events

import (
	"context"
	"sync"

	"github.com/alitto/pond"

	"gridbot/internal/core"
	"gridbot/internal/order"
)

// Topic identifies an event stream on the bus.
type Topic string

const (
	TopicOrderFilled    Topic = "ORDER_FILLED"
	TopicOrderCancelled Topic = "ORDER_CANCELLED"
	TopicStartBot       Topic = "START_BOT"
	TopicStopBot        Topic = "STOP_BOT"
)

// Event is the payload delivered to subscribers. Order is set for order
// topics; Reason carries the cause for lifecycle topics.
type Event struct {
	Topic  Topic
	Order  *order.Order
	Reason string
}

// Handler processes one event. Errors are logged, never retried.
type Handler func(ctx context.Context, event Event) error

// subscriber is one registered handler. Async subscribers get their own
// single-worker pool so events are delivered to them in publish order.
type subscriber struct {
	handler Handler
	pool    *pond.WorkerPool // nil for synchronous subscribers
}

// Bus is a topic-keyed publish/subscribe dispatcher. Synchronous
// handlers run inline on the publisher's goroutine; asynchronous
// handlers run on a serial worker pool per subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*subscriber
	logger      core.ILogger
	closed      bool
}

// NewBus creates an event bus.
func NewBus(logger core.ILogger) *Bus {
	return &Bus{
		subscribers: make(map[Topic][]*subscriber),
		logger:      logger.WithField("component", "event_bus"),
	}
}

// Subscribe registers an asynchronous handler. Deliveries to this
// handler preserve publish order but do not block other subscribers.
func (b *Bus) Subscribe(topic Topic, handler Handler) {
	pool := pond.New(1, 1024, pond.MinWorkers(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], &subscriber{
		handler: handler,
		pool:    pool,
	})
}

// SubscribeSync registers a handler that runs inline during publish.
func (b *Bus) SubscribeSync(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], &subscriber{handler: handler})
}

// Publish delivers the event to every subscriber of its topic and waits
// until all handlers, including asynchronous ones, have completed.
func (b *Bus) Publish(ctx context.Context, event Event) {
	var wg sync.WaitGroup
	for _, sub := range b.snapshot(event.Topic) {
		if sub.pool == nil {
			b.dispatch(ctx, sub, event)
			continue
		}
		wg.Add(1)
		sub.pool.Submit(func() {
			defer wg.Done()
			b.dispatch(ctx, sub, event)
		})
	}
	wg.Wait()
}

// PublishAsync delivers the event without waiting for asynchronous
// handlers. Synchronous handlers still run inline.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	for _, sub := range b.snapshot(event.Topic) {
		if sub.pool == nil {
			b.dispatch(ctx, sub, event)
			continue
		}
		sub.pool.Submit(func() {
			b.dispatch(ctx, sub, event)
		})
	}
}

func (b *Bus) snapshot(topic Topic) []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	subs := make([]*subscriber, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	return subs
}

func (b *Bus) dispatch(ctx context.Context, sub *subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"topic", event.Topic, "panic", r)
		}
	}()
	if err := sub.handler(ctx, event); err != nil {
		b.logger.Error("event handler failed",
			"topic", event.Topic, "error", err)
	}
}

// Close stops accepting events and drains the asynchronous pools.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var pools []*pond.WorkerPool
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			if sub.pool != nil {
				pools = append(pools, sub.pool)
			}
		}
	}
	b.mu.Unlock()

	for _, pool := range pools {
		pool.StopAndWait()
	}
}
