package observability

import (
	"sync"
)

// Metrics provides basic in-memory counters for engine activity.
type Metrics struct {
	mu          sync.Mutex
	transitions map[string]int64
	rejections  map[string]int64
	escalations int64
	published   int64
	dropped     int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		transitions: make(map[string]int64),
		rejections:  make(map[string]int64),
	}
}

// RecordTransition increments the counter for a committed operation.
func (m *Metrics) RecordTransition(operation string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[operation]++
}

// RecordRejection increments the counter for a refused operation,
// keyed by operation and error code.
func (m *Metrics) RecordRejection(operation, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[operation+"|"+code]++
}

// RecordEscalation counts one overdue marking.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations++
}

// RecordPublished counts events accepted by the bus.
func (m *Metrics) RecordPublished() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published++
}

// RecordDropped counts events lost to subscriber buffers.
func (m *Metrics) RecordDropped(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped += count
}

// Snapshot returns copies of the counters for logging or tests.
func (m *Metrics) Snapshot() (transitions map[string]int64, rejections map[string]int64, escalations, published, dropped int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transitions = make(map[string]int64, len(m.transitions))
	for k, v := range m.transitions {
		transitions[k] = v
	}
	rejections = make(map[string]int64, len(m.rejections))
	for k, v := range m.rejections {
		rejections[k] = v
	}
	return transitions, rejections, m.escalations, m.published, m.dropped
}
