package dirgate

import "sync/atomic"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID uint8

const (
	// MetricLoginSuccess is an exported constant or variable used by the directory auth engine.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the directory auth engine.
	MetricLoginFailure
	// MetricLoginLocked is an exported constant or variable used by the directory auth engine.
	MetricLoginLocked
	// MetricLoginNoPermission is an exported constant or variable used by the directory auth engine.
	MetricLoginNoPermission
	// MetricDirectoryUnavailable is an exported constant or variable used by the directory auth engine.
	MetricDirectoryUnavailable
	// MetricChallengeIssued is an exported constant or variable used by the directory auth engine.
	MetricChallengeIssued
	// MetricChallengeReplay is an exported constant or variable used by the directory auth engine.
	MetricChallengeReplay
	// MetricOTPSetup is an exported constant or variable used by the directory auth engine.
	MetricOTPSetup
	// MetricOTPRebind is an exported constant or variable used by the directory auth engine.
	MetricOTPRebind
	// MetricOTPSuccess is an exported constant or variable used by the directory auth engine.
	MetricOTPSuccess
	// MetricOTPFailure is an exported constant or variable used by the directory auth engine.
	MetricOTPFailure
	// MetricTokenIssued is an exported constant or variable used by the directory auth engine.
	MetricTokenIssued
	// MetricTokenRevoked is an exported constant or variable used by the directory auth engine.
	MetricTokenRevoked
	// MetricValidateFailure is an exported constant or variable used by the directory auth engine.
	MetricValidateFailure
	// MetricStepUpRequired is an exported constant or variable used by the directory auth engine.
	MetricStepUpRequired
	// MetricStepUpSuccess is an exported constant or variable used by the directory auth engine.
	MetricStepUpSuccess
	// MetricStepUpFailure is an exported constant or variable used by the directory auth engine.
	MetricStepUpFailure
	// MetricActionGranted is an exported constant or variable used by the directory auth engine.
	MetricActionGranted
	// MetricActionDenied is an exported constant or variable used by the directory auth engine.
	MetricActionDenied

	metricIDCount
)

// Metrics holds atomic counters for engine events. All operations are
// no-ops when the metrics system is disabled.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a new [Metrics] instance configured by the given
// [MetricsConfig].
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc describes the inc operation and its observable behavior.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Get describes the get operation and its observable behavior.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot describes the snapshot operation and its observable behavior.
func (m *Metrics) Snapshot() MetricsSnapshot {
	out := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil || !m.enabled {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out.Counters[id] = m.counters[id].Load()
	}
	return out
}
