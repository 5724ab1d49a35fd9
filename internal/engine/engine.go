package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"insp/internal/audit"
	"insp/internal/collector"
	"insp/internal/conflict"
	"insp/internal/models"
	"insp/internal/notify"
	"insp/internal/store"
)

// DefaultSessionTimeout bounds a single sync session.
const DefaultSessionTimeout = 2 * time.Minute

// Options configures an Engine. Zero values get sensible defaults.
type Options struct {
	Resolver       *conflict.Resolver
	Notifier       notify.Notifier
	Auditor        audit.Auditor
	SessionTimeout time.Duration
	ServerVersion  string
}

// Engine is the sync orchestrator. It owns session progress and batch
// lifecycle; sessions for the same (user, device) pair are serialized,
// different pairs run fully concurrently.
type Engine struct {
	entities  store.EntityStore
	syncs     store.SyncStore
	collector *collector.Collector
	resolver  *conflict.Resolver
	applier   *Applier
	queues    *QueueManager
	notifier  notify.Notifier
	auditor   audit.Auditor

	locks          *keyMutex
	progress       *progressTracker
	sessionTimeout time.Duration
	serverVersion  string
}

// New creates an Engine over the given stores.
func New(entities store.EntityStore, syncs store.SyncStore, opts Options) *Engine {
	if opts.Resolver == nil {
		opts.Resolver = conflict.Default()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.LogNotifier{}
	}
	if opts.Auditor == nil {
		opts.Auditor = audit.LogAuditor{}
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if opts.ServerVersion == "" {
		opts.ServerVersion = "dev"
	}

	return &Engine{
		entities:       entities,
		syncs:          syncs,
		collector:      collector.New(entities),
		resolver:       opts.Resolver,
		applier:        NewApplier(entities),
		queues:         NewQueueManager(syncs),
		notifier:       opts.Notifier,
		auditor:        opts.Auditor,
		locks:          newKeyMutex(),
		progress:       newProgressTracker(),
		sessionTimeout: opts.SessionTimeout,
		serverVersion:  opts.ServerVersion,
	}
}

// Synchronize runs one full sync session: collect server changes since
// the watermark, classify client changes, apply what doesn't conflict,
// resolve what does, persist the batch, and report the outcome.
// Conflicts are normal data in the result, never an error; an error
// return means the session failed and the offline queue (if any) was
// left untouched.
func (e *Engine) Synchronize(ctx context.Context, userID, deviceID string, clientChanges []models.Change, opts models.SyncOptions) (*models.SyncResult, error) {
	if userID == "" || deviceID == "" {
		return nil, fmt.Errorf("synchronize: user id and device id are required")
	}

	key := syncKey(userID, deviceID)
	unlock := e.locks.Lock(key)
	defer unlock()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.sessionTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	syncID := newID("sy-")
	startedAt := time.Now().UTC()

	e.progress.start(key, syncID, len(clientChanges))
	defer e.progress.drop(key, syncID)

	e.notifier.EmitToUser(userID, notify.EventStarted, map[string]any{
		"sync_id": syncID,
		"total":   len(clientChanges),
	})

	fail := func(phase string, err error) (*models.SyncResult, error) {
		wrapped := fmt.Errorf("sync %s: %s: %w", syncID, phase, err)
		e.notifier.EmitToUser(userID, notify.EventFailed, map[string]any{
			"sync_id": syncID,
			"error":   wrapped.Error(),
		})
		slog.Error("sync session failed", "sync_id", syncID, "user", userID, "device", deviceID, "phase", phase, "err", err)
		return nil, wrapped
	}

	// Watermark: caller-supplied, else stored, else the epoch.
	var since time.Time
	if opts.LastSyncTime != nil {
		since = *opts.LastSyncTime
	} else {
		stored, err := e.syncs.GetLastSync(ctx, userID, deviceID)
		if err != nil {
			return fail("watermark", err)
		}
		if stored != nil {
			since = *stored
		}
	}

	serverChanges, err := e.collector.CollectServerChanges(ctx, userID, since, nil)
	if err != nil {
		return fail("collect", err)
	}

	detection := conflict.Detect(clientChanges, serverChanges)

	strategy := opts.Strategy
	if strategy == "" {
		strategy = models.StrategyServerWins
	}

	var (
		applied []models.SyncOperation
		pending []models.SyncConflict
	)

	// Non-conflicting client changes apply immediately; an apply
	// failure becomes a conflict, not a session abort.
	for _, ch := range detection.NonConflicting {
		if err := ctx.Err(); err != nil {
			return fail("apply", err)
		}

		e.progress.setCurrent(syncID, fmt.Sprintf("applying %s %s", ch.EntityType, ch.EntityID))
		if err := e.applier.Apply(ctx, ch); err != nil {
			pending = append(pending, e.failureConflict(userID, ch, err))
			e.progress.fail(syncID)
		} else {
			applied = append(applied, completedOp(ch))
			e.progress.complete(syncID)
		}
		e.emitProgress(userID, syncID)
	}

	// Conflicting changes go through resolution with the session
	// strategy; resolved winners are applied and recorded, the rest
	// stay pending on the batch.
	for _, pair := range detection.Conflicts {
		if err := ctx.Err(); err != nil {
			return fail("resolve", err)
		}

		c := models.SyncConflict{
			ID:           newID("cf-"),
			EntityType:   pair.Client.EntityType,
			EntityID:     pair.Client.EntityID,
			ClientChange: pair.Client,
			ServerChange: &pair.Server,
			DetectedAt:   time.Now().UTC(),
			UserID:       userID,
			Status:       models.ConflictPending,
		}
		e.progress.setCurrent(syncID, fmt.Sprintf("resolving %s %s", c.EntityType, c.EntityID))

		res, err := e.resolver.Resolve(c, strategy, nil)
		if err != nil {
			// Unsupported strategy or resolver bug: fatal for this
			// conflict only.
			c.Error = err.Error()
			pending = append(pending, c)
			e.progress.fail(syncID)
			e.emitProgress(userID, syncID)
			continue
		}
		if !res.Resolved {
			c.Error = res.Error
			pending = append(pending, c)
			e.progress.fail(syncID)
			e.emitProgress(userID, syncID)
			continue
		}

		winner := winningChange(c, res.MergedData)
		if err := e.applier.Apply(ctx, winner); err != nil {
			c.Error = fmt.Sprintf("apply resolved change: %v", err)
			pending = append(pending, c)
			e.progress.fail(syncID)
		} else {
			applied = append(applied, completedOp(winner))
			e.progress.complete(syncID)
		}
		e.emitProgress(userID, syncID)
	}

	batch := &models.SyncBatch{
		ID:         syncID,
		UserID:     userID,
		DeviceID:   deviceID,
		Timestamp:  startedAt,
		Operations: applied,
		Conflicts:  pending,
		Metadata: models.BatchMetadata{
			Strategy:      strategy,
			Priority:      opts.Priority,
			ClientVersion: opts.ClientVersion,
			ServerVersion: e.serverVersion,
		},
	}
	if err := e.syncs.SaveSyncBatch(ctx, batch); err != nil {
		return fail("persist", err)
	}
	if err := e.syncs.SetLastSync(ctx, userID, deviceID, startedAt); err != nil {
		return fail("persist", err)
	}

	status := models.SessionSuccess
	if len(pending) > 0 {
		status = models.SessionPartial
	}
	duration := time.Since(startedAt)

	e.notifier.EmitToUser(userID, notify.EventCompleted, map[string]any{
		"sync_id":        syncID,
		"status":         string(status),
		"applied_count":  len(applied),
		"conflict_count": len(pending),
	})

	if err := e.auditor.Record(ctx, audit.Entry{
		SyncID:        syncID,
		UserID:        userID,
		DeviceID:      deviceID,
		Status:        status,
		AppliedCount:  len(applied),
		ConflictCount: len(pending),
		Duration:      duration,
	}); err != nil {
		slog.Warn("audit record failed", "sync_id", syncID, "err", err)
	}

	slog.Info("sync session finished",
		"sync_id", syncID, "user", userID, "device", deviceID,
		"status", string(status), "applied", len(applied), "conflicts", len(pending))

	return &models.SyncResult{
		SyncID:        syncID,
		Status:        status,
		Applied:       applied,
		ServerChanges: serverChanges,
		Conflicts:     pending,
		AppliedCount:  len(applied),
		ConflictCount: len(pending),
		StartedAt:     startedAt,
		Duration:      duration,
	}, nil
}

// ForceSync drains the offline queue through a full sync session. Only
// the drained snapshot is cleared, and only when the session fully
// succeeds; a partial or failed session leaves the queue intact for the
// next attempt, and changes enqueued while the session runs survive it.
func (e *Engine) ForceSync(ctx context.Context, userID, deviceID string, opts models.SyncOptions) (*models.SyncResult, error) {
	pending, err := e.queues.Pending(ctx, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("force sync: %w", err)
	}

	result, err := e.Synchronize(ctx, userID, deviceID, pending, opts)
	if err != nil {
		return nil, err
	}

	if result.Status == models.SessionSuccess {
		if err := e.queues.ClearDrained(ctx, userID, deviceID, pending); err != nil {
			return result, fmt.Errorf("force sync: clear queue: %w", err)
		}
	}
	return result, nil
}

// QueueOperation appends a change to the offline queue for later sync.
func (e *Engine) QueueOperation(ctx context.Context, userID, deviceID string, change models.Change) error {
	if !models.ValidEntityType(change.EntityType) {
		return fmt.Errorf("queue operation: unknown entity type %q", change.EntityType)
	}
	switch change.Operation {
	case models.OpCreate, models.OpUpdate, models.OpDelete:
	default:
		return fmt.Errorf("queue operation: unknown operation %q", change.Operation)
	}
	return e.queues.Enqueue(ctx, userID, deviceID, change)
}

// GetPendingOperations returns the queued changes without removing them.
func (e *Engine) GetPendingOperations(ctx context.Context, userID, deviceID string) ([]models.Change, error) {
	return e.queues.Pending(ctx, userID, deviceID)
}

// Status is the sync state of one (user, device) pair.
type Status struct {
	Active           *models.SyncProgress `json:"active,omitempty"`
	QueueDepth       int                  `json:"queue_depth"`
	LastSyncAt       *time.Time           `json:"last_sync_at,omitempty"`
	PendingConflicts int                  `json:"pending_conflicts"`
}

// GetStatus reports the active session (if any), queue depth, last
// sync watermark, and pending conflict count for a pair.
func (e *Engine) GetStatus(ctx context.Context, userID, deviceID string) (*Status, error) {
	depth, err := e.queues.Depth(ctx, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	lastSync, err := e.syncs.GetLastSync(ctx, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	conflicts, err := e.syncs.ListPendingConflicts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	return &Status{
		Active:           e.progress.activeForKey(syncKey(userID, deviceID)),
		QueueDepth:       depth,
		LastSyncAt:       lastSync,
		PendingConflicts: len(conflicts),
	}, nil
}

// ListPendingConflicts returns a user's unresolved conflicts.
func (e *Engine) ListPendingConflicts(ctx context.Context, userID string) ([]models.SyncConflict, error) {
	return e.syncs.ListPendingConflicts(ctx, userID)
}

// ResolveConflict resolves a pending conflict out-of-band with the
// supplied strategy and optional merged payload, applies the winning
// payload, and marks the conflict resolved. A manual strategy leaves
// the conflict pending (resolved=false, no error).
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, strategy models.Strategy, mergedData json.RawMessage, resolvedBy string) (*models.ResolveResult, error) {
	c, err := e.syncs.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("resolve conflict: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("resolve conflict: %s not found", conflictID)
	}
	if c.Status == models.ConflictResolved {
		return nil, fmt.Errorf("resolve conflict: %s already resolved", conflictID)
	}

	res, err := e.resolver.Resolve(*c, strategy, mergedData)
	if err != nil {
		return nil, fmt.Errorf("resolve conflict %s: %w", conflictID, err)
	}
	if !res.Resolved {
		return &res, nil
	}

	winner := winningChange(*c, res.MergedData)
	winner.OriginUserID = resolvedBy
	if err := e.applier.Apply(ctx, winner); err != nil {
		return nil, fmt.Errorf("resolve conflict %s: apply: %w", conflictID, err)
	}

	if err := e.syncs.MarkConflictResolved(ctx, conflictID, strategy, resolvedBy); err != nil {
		return nil, fmt.Errorf("resolve conflict %s: %w", conflictID, err)
	}
	return &res, nil
}

func (e *Engine) emitProgress(userID, syncID string) {
	if pr := e.progress.snapshot(syncID); pr != nil {
		e.notifier.EmitToUser(userID, notify.EventProgress, map[string]any{
			"sync_id":  syncID,
			"progress": pr,
		})
	}
}

// failureConflict wraps an apply failure as a pending conflict with no
// server counterpart.
func (e *Engine) failureConflict(userID string, ch models.Change, applyErr error) models.SyncConflict {
	return models.SyncConflict{
		ID:           newID("cf-"),
		EntityType:   ch.EntityType,
		EntityID:     ch.EntityID,
		ClientChange: ch,
		ServerChange: nil,
		DetectedAt:   time.Now().UTC(),
		UserID:       userID,
		Status:       models.ConflictPending,
		Error:        applyErr.Error(),
	}
}

// winningChange builds the change to apply for a resolved conflict: the
// client change's identity with the winning payload, stamped with the
// later of the two colliding timestamps.
func winningChange(c models.SyncConflict, payload json.RawMessage) models.Change {
	ch := c.ClientChange
	ch.Payload = payload
	if c.ServerChange != nil && c.ServerChange.Timestamp.After(ch.Timestamp) {
		ch.Timestamp = c.ServerChange.Timestamp
	}
	// A resolved delete-vs-update still applies as an upsert of the
	// winning payload unless both sides deleted.
	if ch.Operation == models.OpCreate {
		ch.Operation = models.OpUpdate
	}
	return ch
}

func completedOp(ch models.Change) models.SyncOperation {
	return models.SyncOperation{
		Change:    ch,
		Status:    models.OperationCompleted,
		AppliedAt: time.Now().UTC(),
	}
}
