package bus

import (
	"sync"
	"time"

	"github.com/a2aforge/meshbus/core"
)

// MetricsSnapshot is a point-in-time read of bus metrics.
type MetricsSnapshot struct {
	TotalMessages      int64   `json:"total_messages"`
	SuccessfulMessages int64   `json:"successful_messages"`
	FailedMessages     int64   `json:"failed_messages"`
	AverageLatencyMS   float64 `json:"average_latency_ms"`
	ThroughputPerSec   int64   `json:"throughput_per_sec"`
}

// metrics holds the bus's running counters. Not a package-level
// singleton; each Bus owns one.
type metrics struct {
	mu                 sync.Mutex
	totalMessages      int64
	successfulMessages int64
	failedMessages     int64
	averageLatency     float64 // ms; exponential smoothing, alpha=0.5
	sentTimestamps     []int64 // ms since epoch, for the 1s throughput window
}

func newMetrics() *metrics {
	return &metrics{}
}

// recordSent increments totalMessages and records the send timestamp
// for throughput computation.
func (m *metrics) recordSent(msg *core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalMessages++
	m.sentTimestamps = append(m.sentTimestamps, core.NowMS())
}

// recordResponse updates success/failure counters and the smoothed
// average latency. nil responses are ignored (a synthesized dispatch
// path may not always produce one, e.g. an aborted pipeline stage list).
func (m *metrics) recordResponse(resp *core.Response) {
	if resp == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if resp.Success {
		m.successfulMessages++
	} else {
		m.failedMessages++
	}
	latency := float64(resp.Metadata.ProcessingTimeMS)
	m.averageLatency = (m.averageLatency + latency) / 2
}

func (m *metrics) snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-time.Second).UnixMilli()
	throughput := int64(0)
	for _, ts := range m.sentTimestamps {
		if ts >= cutoff {
			throughput++
		}
	}
	return MetricsSnapshot{
		TotalMessages:      m.totalMessages,
		SuccessfulMessages: m.successfulMessages,
		FailedMessages:     m.failedMessages,
		AverageLatencyMS:   m.averageLatency,
		ThroughputPerSec:   throughput,
	}
}

func (m *metrics) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalMessages = 0
	m.successfulMessages = 0
	m.failedMessages = 0
	m.averageLatency = 0
	m.sentTimestamps = nil
}
