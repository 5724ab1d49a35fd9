package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory daemon metrics using atomic counters.
type Metrics struct {
	startTime    time.Time
	requests     atomic.Int64
	serverErrors atomic.Int64
	clientErrors atomic.Int64

	syncsStarted      atomic.Int64
	syncsCompleted    atomic.Int64
	syncsFailed       atomic.Int64
	opsApplied        atomic.Int64
	conflictsDetected atomic.Int64
	conflictsResolved atomic.Int64
}

// MetricsSnapshot is a point-in-time view of daemon metrics.
type MetricsSnapshot struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Requests          int64   `json:"requests"`
	ServerErrors      int64   `json:"server_errors"`
	ClientErrors      int64   `json:"client_errors"`
	SyncsStarted      int64   `json:"syncs_started"`
	SyncsCompleted    int64   `json:"syncs_completed"`
	SyncsFailed       int64   `json:"syncs_failed"`
	OpsApplied        int64   `json:"ops_applied"`
	ConflictsDetected int64   `json:"conflicts_detected"`
	ConflictsResolved int64   `json:"conflicts_resolved"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordSyncStarted increments the started-session counter.
func (m *Metrics) RecordSyncStarted() {
	m.syncsStarted.Add(1)
}

// RecordSyncCompleted records one finished session with its counts.
func (m *Metrics) RecordSyncCompleted(applied, conflicts int) {
	m.syncsCompleted.Add(1)
	m.opsApplied.Add(int64(applied))
	m.conflictsDetected.Add(int64(conflicts))
}

// RecordSyncFailed increments the failed-session counter.
func (m *Metrics) RecordSyncFailed() {
	m.syncsFailed.Add(1)
}

// RecordConflictResolved increments the resolved-conflict counter.
func (m *Metrics) RecordConflictResolved() {
	m.conflictsResolved.Add(1)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
		Requests:          m.requests.Load(),
		ServerErrors:      m.serverErrors.Load(),
		ClientErrors:      m.clientErrors.Load(),
		SyncsStarted:      m.syncsStarted.Load(),
		SyncsCompleted:    m.syncsCompleted.Load(),
		SyncsFailed:       m.syncsFailed.Load(),
		OpsApplied:        m.opsApplied.Load(),
		ConflictsDetected: m.conflictsDetected.Load(),
		ConflictsResolved: m.conflictsResolved.Load(),
	}
}
