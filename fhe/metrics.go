package fhe

import (
	"sync"
	"time"
)

// OpStats is the snapshot view of one operation's counters.
type OpStats struct {
	Count          int   `json:"count"`
	ProcessingTime int64 `json:"processing_time_ms"`
}

// OpMetrics tracks per-operation call counts and cumulative processing time
// for the engine.
type OpMetrics struct {
	mu    sync.RWMutex
	stats map[string]*opEntry
}

type opEntry struct {
	count int
	total time.Duration
}

func NewOpMetrics() *OpMetrics {
	return &OpMetrics{stats: make(map[string]*opEntry)}
}

func (m *OpMetrics) Record(op string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.stats[op]
	if e == nil {
		e = &opEntry{}
		m.stats[op] = e
	}
	e.count++
	e.total += d
}

// Snapshot returns current metrics for all operations.
func (m *OpMetrics) Snapshot() map[string]OpStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]OpStats, len(m.stats))
	for op, e := range m.stats {
		out[op] = OpStats{Count: e.count, ProcessingTime: e.total.Milliseconds()}
	}
	return out
}

// Reset clears all metrics.
func (m *OpMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = make(map[string]*opEntry)
}
