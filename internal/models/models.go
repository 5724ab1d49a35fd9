package models

import (
	"encoding/json"
	"time"
)

// EntityType identifies one of the fixed syncable entity kinds.
type EntityType string

const (
	EntityInspection   EntityType = "inspection"
	EntityAsset        EntityType = "asset"
	EntityFormTemplate EntityType = "form_template"
	EntityFolder       EntityType = "folder"
	EntityUser         EntityType = "user"
)

// EntityTypes is the full fixed set, in collection order.
var EntityTypes = []EntityType{
	EntityInspection,
	EntityAsset,
	EntityFormTemplate,
	EntityFolder,
	EntityUser,
}

// ValidEntityType reports whether et is one of the fixed entity types.
func ValidEntityType(et EntityType) bool {
	switch et {
	case EntityInspection, EntityAsset, EntityFormTemplate, EntityFolder, EntityUser:
		return true
	}
	return false
}

// Operation is the mutation kind carried by a Change.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Strategy selects how a conflict's winning payload is chosen.
type Strategy string

const (
	StrategyClientWins Strategy = "client_wins"
	StrategyServerWins Strategy = "server_wins"
	StrategyMerge      Strategy = "merge"
	StrategyManual     Strategy = "manual"
)

// ValidStrategy reports whether s is a supported resolution strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyClientWins, StrategyServerWins, StrategyMerge, StrategyManual:
		return true
	}
	return false
}

// OperationStatus marks a SyncOperation as applied or failed.
type OperationStatus string

const (
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
)

// ConflictStatus is the lifecycle state of a SyncConflict.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
)

// SessionStatus is the outcome of one sync session.
type SessionStatus string

const (
	SessionSuccess SessionStatus = "success"
	SessionPartial SessionStatus = "partial"
	SessionFailed  SessionStatus = "failed"
)

// Change is the uniform representation of a mutation, client- or
// server-origin. Server-origin changes carry OriginDeviceID "server".
type Change struct {
	ID             string          `json:"id"`
	EntityType     EntityType      `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Operation      Operation       `json:"operation"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
	OriginDeviceID string          `json:"origin_device_id"`
	OriginUserID   string          `json:"origin_user_id"`
}

// ServerOrigin is the OriginDeviceID used for server-side changes.
const ServerOrigin = "server"

// SyncOperation is an applied Change recorded in a batch.
type SyncOperation struct {
	Change
	Status    OperationStatus `json:"status"`
	AppliedAt time.Time       `json:"applied_at"`
}

// SyncConflict pairs a client change with the server change it collided
// with. ServerChange is nil when the conflict came from an apply-time
// failure rather than a race; Error is populated in that case.
type SyncConflict struct {
	ID           string         `json:"id"`
	EntityType   EntityType     `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	ClientChange Change         `json:"client_change"`
	ServerChange *Change        `json:"server_change,omitempty"`
	DetectedAt   time.Time      `json:"detected_at"`
	UserID       string         `json:"user_id"`
	Status       ConflictStatus `json:"status"`
	Resolution   *Strategy      `json:"resolution,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// BatchMetadata captures the options a sync session ran with.
type BatchMetadata struct {
	Strategy      Strategy `json:"strategy"`
	Priority      string   `json:"priority,omitempty"`
	ClientVersion string   `json:"client_version,omitempty"`
	ServerVersion string   `json:"server_version,omitempty"`
}

// SyncBatch is the durable audit record of one sync session. Conflicts
// holds unresolved conflicts only; they transition to resolved
// independently of the batch.
type SyncBatch struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	DeviceID   string          `json:"device_id"`
	Timestamp  time.Time       `json:"timestamp"`
	Operations []SyncOperation `json:"operations"`
	Conflicts  []SyncConflict  `json:"conflicts"`
	Metadata   BatchMetadata   `json:"metadata"`
}

// OfflineQueue is the per-(user, device) backlog of changes awaiting
// sync. Operations is append-only until the queue is cleared.
type OfflineQueue struct {
	UserID      string    `json:"user_id"`
	DeviceID    string    `json:"device_id"`
	Operations  []Change  `json:"operations"`
	LastUpdated time.Time `json:"last_updated"`
}

// SyncProgress is the transient progress of an active session. It is
// keyed by sync ID and discarded when the session ends.
type SyncProgress struct {
	SyncID           string  `json:"sync_id"`
	Total            int     `json:"total"`
	Completed        int     `json:"completed"`
	Failed           int     `json:"failed"`
	Percentage       float64 `json:"percentage"`
	CurrentOperation string  `json:"current_operation,omitempty"`
}

// SyncOptions are the caller-supplied knobs for one sync session.
type SyncOptions struct {
	Strategy      Strategy      `json:"strategy,omitempty"`
	LastSyncTime  *time.Time    `json:"last_sync_time,omitempty"`
	Priority      string        `json:"priority,omitempty"`
	ClientVersion string        `json:"client_version,omitempty"`
	Timeout       time.Duration `json:"-"`
}

// SyncResult is what a completed (success or partial) session returns.
type SyncResult struct {
	SyncID        string          `json:"sync_id"`
	Status        SessionStatus   `json:"status"`
	Applied       []SyncOperation `json:"applied"`
	ServerChanges []Change        `json:"server_changes"`
	Conflicts     []SyncConflict  `json:"conflicts"`
	AppliedCount  int             `json:"applied_count"`
	ConflictCount int             `json:"conflict_count"`
	StartedAt     time.Time       `json:"started_at"`
	Duration      time.Duration   `json:"duration"`
}

// ResolveResult is the outcome of a single conflict resolution attempt.
type ResolveResult struct {
	Resolved   bool            `json:"resolved"`
	MergedData json.RawMessage `json:"merged_data,omitempty"`
	Error      string          `json:"error,omitempty"`
}
