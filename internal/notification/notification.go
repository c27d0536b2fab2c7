// Package notification fans typed trading notifications out to
// configured channels.
package notification

import (
	"context"
	"sync"
	"time"

	"gridbot/internal/core"
)

// Type classifies a notification.
type Type string

const (
	OrderPlaced         Type = "ORDER_PLACED"
	OrderFailed         Type = "ORDER_FAILED"
	OrderCancelled      Type = "ORDER_CANCELLED"
	TakeProfitTriggered Type = "TAKE_PROFIT_TRIGGERED"
	StopLossTriggered   Type = "STOP_LOSS_TRIGGERED"
	HealthCheckAlert    Type = "HEALTH_CHECK_ALERT"
	ErrorOccurred       Type = "ERROR_OCCURRED"
)

// Payload is one notification with free-form detail fields.
type Payload struct {
	Type      Type
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// Channel delivers notifications to one destination.
type Channel interface {
	Send(ctx context.Context, payload Payload) error
	Name() string
}

// Manager dispatches notifications to all channels concurrently.
// Channel failures are logged and never propagate to trading code.
type Manager struct {
	mu       sync.RWMutex
	channels []Channel
	logger   core.ILogger
}

// NewManager creates a notification manager with no channels.
func NewManager(logger core.ILogger) *Manager {
	return &Manager{
		logger: logger.WithField("component", "notification_manager"),
	}
}

// AddChannel registers a delivery channel.
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("notification channel added", "name", ch.Name())
}

// Notify delivers a notification to every channel and waits for all of
// them, bounding each delivery with a timeout.
func (m *Manager) Notify(ctx context.Context, typ Type, message string, fields map[string]string) {
	payload := Payload{
		Type:      typ,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}

	m.mu.RLock()
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := c.Send(sendCtx, payload); err != nil {
				m.logger.Error("notification delivery failed",
					"channel", c.Name(), "type", typ, "error", err)
			}
		}(ch)
	}
	wg.Wait()
}

// NotifyAsync delivers without blocking the caller.
func (m *Manager) NotifyAsync(ctx context.Context, typ Type, message string, fields map[string]string) {
	go m.Notify(context.WithoutCancel(ctx), typ, message, fields)
}
