// Package tracker polls the exchange for open order status changes and
// turns them into bus events.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/alitto/pond"

	"gridbot/internal/core"
	"gridbot/internal/events"
	"gridbot/internal/execution"
	"gridbot/internal/order"
)

// StatusTracker periodically fetches every open order concurrently and
// publishes ORDER_FILLED / ORDER_CANCELLED on transitions. Terminal
// statuses are deduplicated against the local book so each transition
// is published once.
type StatusTracker struct {
	book     *order.Book
	executor execution.Strategy
	bus      *events.Bus
	interval time.Duration

	pool   *pond.WorkerPool
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	logger core.ILogger
}

// NewStatusTracker creates a tracker polling at the given interval.
func NewStatusTracker(
	book *order.Book,
	executor execution.Strategy,
	bus *events.Bus,
	interval time.Duration,
	logger core.ILogger,
) *StatusTracker {
	return &StatusTracker{
		book:     book,
		executor: executor,
		bus:      bus,
		interval: interval,
		pool:     pond.New(8, 256, pond.MinWorkers(1)),
		done:     make(chan struct{}),
		logger:   logger.WithField("component", "status_tracker"),
	}
}

// Start launches the polling loop. It returns immediately.
func (t *StatusTracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.pollOnce(ctx)
			}
		}
	}()
}

// Stop halts polling and drains in-flight per-order fetches.
func (t *StatusTracker) Stop() {
	t.once.Do(func() {
		if t.cancel != nil {
			t.cancel()
			<-t.done
		}
		t.pool.StopAndWait()
	})
}

// pollOnce fetches every open order concurrently and waits for the
// batch to finish before returning.
func (t *StatusTracker) pollOnce(ctx context.Context) {
	open := t.book.OpenOrders()
	if len(open) == 0 {
		return
	}

	group := t.pool.Group()
	for _, o := range open {
		o := o
		group.Submit(func() {
			t.checkOrder(ctx, o)
		})
	}
	group.Wait()
}

func (t *StatusTracker) checkOrder(ctx context.Context, local *order.Order) {
	fresh, err := t.executor.GetOrder(ctx, local.ID, local.Symbol)
	if err != nil {
		t.logger.Warn("order status fetch failed",
			"order_id", local.ID, "error", err)
		return
	}

	switch fresh.Status {
	case order.StatusOpen:
		if fresh.Filled.IsPositive() {
			t.logger.Info("partial fill observed",
				"order_id", local.ID,
				"filled", fresh.Filled.String(),
				"remaining", fresh.Remaining.String())
			t.book.UpdateStatus(fresh)
		}

	case order.StatusClosed:
		if t.markTerminal(local.ID, fresh) {
			t.bus.Publish(ctx, events.Event{Topic: events.TopicOrderFilled, Order: t.snapshot(local.ID)})
		}

	case order.StatusCanceled, order.StatusExpired, order.StatusRejected:
		if t.markTerminal(local.ID, fresh) {
			t.bus.Publish(ctx, events.Event{Topic: events.TopicOrderCancelled, Order: t.snapshot(local.ID)})
		}

	case order.StatusUnknown:
		t.logger.Error("order returned without a recognizable status",
			"order_id", local.ID)
	}
}

// markTerminal applies a terminal status to the book. Returns false if
// the local copy already reached a terminal status, so repeated poll
// results publish nothing.
func (t *StatusTracker) markTerminal(id string, fresh *order.Order) bool {
	current, ok := t.book.Get(id)
	if !ok || current.Status.IsTerminal() {
		return false
	}
	t.book.UpdateStatus(fresh)
	return true
}

func (t *StatusTracker) snapshot(id string) *order.Order {
	o, _ := t.book.Get(id)
	return o
}
