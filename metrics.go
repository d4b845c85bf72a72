package portalauth

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterExists
	MetricRegisterUpgrade
	MetricLoginSuccess
	MetricLoginFailure
	MetricRenewSuccess
	MetricRenewFailure
	MetricTokensInvalidated
	MetricResetRequest
	MetricResetConfirmSuccess
	MetricResetConfirmFailure
	MetricCardSaved
	MetricCardDeclined
	MetricAddressSaved
	MetricVisitUpserted
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value atomic.Uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters for engine operations. A nil or disabled
// Metrics is a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics creates the counter set. When enabled is false every operation
// is a no-op, letting callers keep the wiring without the cost.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricIDCount),
	}
	if m == nil || !m.enabled {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].value.Load()
	}
	return snap
}
