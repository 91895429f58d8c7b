package engine

import (
	"sync"
	"time"
)

// Metrics aggregates session counters across the whole fleet run.
type Metrics struct {
	mu              sync.RWMutex
	sessions        int64
	failures        int64
	launchFailures  int64
	commandFailures int64
	duration        time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) RecordSession(o Outcome) {
	m.mu.Lock()
	m.sessions++
	if !o.Success() {
		m.failures++
	}
	m.duration += o.Duration
	m.mu.Unlock()
}

func (m *Metrics) RecordLaunchFailure() {
	m.mu.Lock()
	m.launchFailures++
	m.mu.Unlock()
}

func (m *Metrics) RecordCommandFailure() {
	m.mu.Lock()
	m.commandFailures++
	m.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Sessions        int64
	Failures        int64
	LaunchFailures  int64
	CommandFailures int64
	Duration        time.Duration
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Sessions:        m.sessions,
		Failures:        m.failures,
		LaunchFailures:  m.launchFailures,
		CommandFailures: m.commandFailures,
		Duration:        m.duration,
	}
}
