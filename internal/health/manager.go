// Package health aggregates component health checks and runs the
// periodic bot health probe.
package health

import (
	"sync"

	"gridbot/internal/core"
)

// ComponentStatus is one component's probe result.
type ComponentStatus struct {
	Name    string
	Healthy bool
	Detail  string // failure text, empty when healthy
}

type check struct {
	name  string
	probe func() error
}

// Manager runs the bot's component probes, strategy liveness and
// exchange connectivity chief among them, in registration order.
type Manager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks []check
}

// NewManager creates an empty health manager. A nil logger disables
// probe logging.
func NewManager(logger core.ILogger) *Manager {
	m := &Manager{}
	if logger != nil {
		m.logger = logger.WithField("component", "health")
	}
	return m
}

// Register adds a component probe. Registering a name again replaces
// its probe without changing the component's position.
func (m *Manager) Register(name string, probe func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.checks {
		if m.checks[i].name == name {
			m.checks[i].probe = probe
			return
		}
	}
	m.checks = append(m.checks, check{name: name, probe: probe})
}

// Snapshot probes every component and returns the results in
// registration order. Probes run outside the lock so they may call
// back into the bot.
func (m *Manager) Snapshot() []ComponentStatus {
	m.mu.RLock()
	checks := make([]check, len(m.checks))
	copy(checks, m.checks)
	m.mu.RUnlock()

	statuses := make([]ComponentStatus, 0, len(checks))
	for _, c := range checks {
		status := ComponentStatus{Name: c.name, Healthy: true}
		if err := c.probe(); err != nil {
			status.Healthy = false
			status.Detail = err.Error()
			if m.logger != nil {
				m.logger.Warn("component unhealthy", "name", c.name, "error", err)
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// GetStatus returns component status strings keyed by name: "ok" when
// healthy, the failure detail otherwise.
func (m *Manager) GetStatus() map[string]string {
	snapshot := m.Snapshot()
	status := make(map[string]string, len(snapshot))
	for _, s := range snapshot {
		if s.Healthy {
			status[s.Name] = "ok"
		} else {
			status[s.Name] = s.Detail
		}
	}
	return status
}

// IsHealthy reports whether every component currently passes its probe.
func (m *Manager) IsHealthy() bool {
	for _, s := range m.Snapshot() {
		if !s.Healthy {
			return false
		}
	}
	return true
}
