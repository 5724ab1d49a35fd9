package audit

import (
	"context"
	"log/slog"
	"time"

	"insp/internal/models"
	"insp/internal/store"
)

// Entry is the session metadata recorded once per completed sync.
type Entry struct {
	SyncID        string
	UserID        string
	DeviceID      string
	Status        models.SessionStatus
	AppliedCount  int
	ConflictCount int
	Duration      time.Duration
}

// Auditor records completed sessions. A failed audit must not fail the
// session; callers log the error and move on.
type Auditor interface {
	Record(ctx context.Context, e Entry) error
}

// LogAuditor writes audit entries to the log only.
type LogAuditor struct{}

// Record implements Auditor.
func (LogAuditor) Record(ctx context.Context, e Entry) error {
	slog.Info("sync audited",
		"sync_id", e.SyncID,
		"user", e.UserID,
		"device", e.DeviceID,
		"status", string(e.Status),
		"applied", e.AppliedCount,
		"conflicts", e.ConflictCount,
		"dur", e.Duration.String(),
	)
	return nil
}

// StoreAuditor persists audit entries to the audit_log table.
type StoreAuditor struct {
	Store *store.SQLiteStore
}

// Record implements Auditor.
func (a *StoreAuditor) Record(ctx context.Context, e Entry) error {
	return a.Store.InsertAuditEntry(ctx, e.SyncID, e.UserID, e.DeviceID,
		string(e.Status), e.AppliedCount, e.ConflictCount, e.Duration)
}
