package health

import (
	"context"
	"time"

	"gridbot/internal/core"
	"gridbot/internal/notification"
)

// Checker probes the registered health checks on an interval and sends
// an alert notification when a component degrades.
type Checker struct {
	manager  *Manager
	notifier *notification.Manager
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
	logger   core.ILogger
}

// NewChecker creates a periodic health checker.
func NewChecker(manager *Manager, notifier *notification.Manager, interval time.Duration, logger core.ILogger) *Checker {
	return &Checker{
		manager:  manager,
		notifier: notifier,
		interval: interval,
		done:     make(chan struct{}),
		logger:   logger.WithField("component", "health_checker"),
	}
}

// Start launches the probe loop.
func (c *Checker) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		wasHealthy := true

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				healthy := c.probe(ctx, wasHealthy)
				wasHealthy = healthy
			}
		}
	}()
}

// Stop halts the probe loop.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

// probe alerts only on the healthy-to-unhealthy edge so a persistent
// outage does not flood the channels.
func (c *Checker) probe(ctx context.Context, wasHealthy bool) bool {
	snapshot := c.manager.Snapshot()
	healthy := true
	for _, s := range snapshot {
		if !s.Healthy {
			healthy = false
		}
	}

	if !healthy && wasHealthy {
		c.notifier.NotifyAsync(ctx, notification.HealthCheckAlert,
			"bot health degraded", degradedFields(snapshot))
	}
	return healthy
}

// degradedFields keeps the alert payload to the failing components.
func degradedFields(snapshot []ComponentStatus) map[string]string {
	fields := make(map[string]string)
	for _, s := range snapshot {
		if !s.Healthy {
			fields[s.Name] = s.Detail
		}
	}
	return fields
}
