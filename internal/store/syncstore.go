package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"insp/internal/models"
)

// GetLastSync returns the stored watermark for a (user, device) pair,
// or nil if the pair has never synced.
func (s *SQLiteStore) GetLastSync(ctx context.Context, userID, deviceID string) (*time.Time, error) {
	var ts string
	err := s.conn.QueryRowContext(ctx,
		`SELECT last_sync_at FROM sync_state WHERE user_id = ? AND device_id = ?`,
		userID, deviceID).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last sync: %w", err)
	}
	t, err := parseTimestamp(ts)
	if err != nil {
		return nil, fmt.Errorf("parse last sync: %w", err)
	}
	return &t, nil
}

// SetLastSync records the watermark for a (user, device) pair.
func (s *SQLiteStore) SetLastSync(ctx context.Context, userID, deviceID string, t time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO sync_state (user_id, device_id, last_sync_at) VALUES (?, ?, ?)`,
		userID, deviceID, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set last sync: %w", err)
	}
	return nil
}

// SaveSyncBatch persists a batch row plus one row per unresolved
// conflict, in a single transaction.
func (s *SQLiteStore) SaveSyncBatch(ctx context.Context, batch *models.SyncBatch) error {
	ops, err := json.Marshal(batch.Operations)
	if err != nil {
		return fmt.Errorf("marshal operations: %w", err)
	}
	meta, err := json.Marshal(batch.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_batches (id, user_id, device_id, timestamp, operations, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.UserID, batch.DeviceID,
		batch.Timestamp.UTC().Format(time.RFC3339Nano), string(ops), string(meta)); err != nil {
		return fmt.Errorf("insert batch %s: %w", batch.ID, err)
	}

	for _, c := range batch.Conflicts {
		if err := insertConflictTx(ctx, tx, batch.ID, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch %s: %w", batch.ID, err)
	}
	return nil
}

func insertConflictTx(ctx context.Context, tx *sql.Tx, batchID string, c models.SyncConflict) error {
	clientJSON, err := json.Marshal(c.ClientChange)
	if err != nil {
		return fmt.Errorf("marshal client change: %w", err)
	}
	var serverJSON any
	if c.ServerChange != nil {
		b, err := json.Marshal(c.ServerChange)
		if err != nil {
			return fmt.Errorf("marshal server change: %w", err)
		}
		serverJSON = string(b)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sync_conflicts (id, batch_id, user_id, entity_type, entity_id, client_change, server_change, detected_at, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, batchID, c.UserID, string(c.EntityType), c.EntityID,
		string(clientJSON), serverJSON,
		c.DetectedAt.UTC().Format(time.RFC3339Nano), string(c.Status), c.Error)
	if err != nil {
		return fmt.Errorf("insert conflict %s: %w", c.ID, err)
	}
	return nil
}

// ListRecentBatches returns the newest batches for a user, newest first.
func (s *SQLiteStore) ListRecentBatches(ctx context.Context, userID string, limit int) ([]models.SyncBatch, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, device_id, timestamp, operations, metadata
		 FROM sync_batches WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []models.SyncBatch
	for rows.Next() {
		var (
			b         models.SyncBatch
			ts        string
			ops, meta string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.DeviceID, &ts, &ops, &meta); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if b.Timestamp, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("parse batch timestamp %s: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(ops), &b.Operations); err != nil {
			return nil, fmt.Errorf("unmarshal operations %s: %w", b.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &b.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata %s: %w", b.ID, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		conflicts, err := s.listBatchConflicts(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Conflicts = conflicts
	}
	return out, nil
}

// listBatchConflicts returns the conflicts recorded under one batch,
// whatever their current status.
func (s *SQLiteStore) listBatchConflicts(ctx context.Context, batchID string) ([]models.SyncConflict, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, entity_type, entity_id, client_change, server_change, detected_at, status, resolution, error
		 FROM sync_conflicts WHERE batch_id = ? ORDER BY detected_at ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch conflicts: %w", err)
	}
	defer rows.Close()

	var out []models.SyncConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SaveOfflineQueue replaces the persisted copy of a queue.
func (s *SQLiteStore) SaveOfflineQueue(ctx context.Context, q *models.OfflineQueue) error {
	ops, err := json.Marshal(q.Operations)
	if err != nil {
		return fmt.Errorf("marshal queue operations: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO offline_queues (user_id, device_id, operations, last_updated)
		 VALUES (?, ?, ?, ?)`,
		q.UserID, q.DeviceID, string(ops), q.LastUpdated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save queue %s/%s: %w", q.UserID, q.DeviceID, err)
	}
	return nil
}

// GetOfflineQueue returns the persisted queue, or nil if none exists.
func (s *SQLiteStore) GetOfflineQueue(ctx context.Context, userID, deviceID string) (*models.OfflineQueue, error) {
	var (
		ops string
		ts  string
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT operations, last_updated FROM offline_queues WHERE user_id = ? AND device_id = ?`,
		userID, deviceID).Scan(&ops, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue %s/%s: %w", userID, deviceID, err)
	}

	q := &models.OfflineQueue{UserID: userID, DeviceID: deviceID}
	if err := json.Unmarshal([]byte(ops), &q.Operations); err != nil {
		return nil, fmt.Errorf("unmarshal queue %s/%s: %w", userID, deviceID, err)
	}
	if q.LastUpdated, err = parseTimestamp(ts); err != nil {
		return nil, fmt.Errorf("parse queue timestamp: %w", err)
	}
	return q, nil
}

// ClearOfflineQueue removes the persisted queue for a pair.
func (s *SQLiteStore) ClearOfflineQueue(ctx context.Context, userID, deviceID string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM offline_queues WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	if err != nil {
		return fmt.Errorf("clear queue %s/%s: %w", userID, deviceID, err)
	}
	return nil
}

// ListOfflineQueues returns every persisted queue. Used by the sweeper.
func (s *SQLiteStore) ListOfflineQueues(ctx context.Context) ([]models.OfflineQueue, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT user_id, device_id, operations, last_updated FROM offline_queues`)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	defer rows.Close()

	var out []models.OfflineQueue
	for rows.Next() {
		var (
			q   models.OfflineQueue
			ops string
			ts  string
		)
		if err := rows.Scan(&q.UserID, &q.DeviceID, &ops, &ts); err != nil {
			return nil, fmt.Errorf("scan queue: %w", err)
		}
		if err := json.Unmarshal([]byte(ops), &q.Operations); err != nil {
			return nil, fmt.Errorf("unmarshal queue %s/%s: %w", q.UserID, q.DeviceID, err)
		}
		if q.LastUpdated, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("parse queue timestamp: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// GetConflict returns a conflict by id, or nil if absent.
func (s *SQLiteStore) GetConflict(ctx context.Context, id string) (*models.SyncConflict, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, user_id, entity_type, entity_id, client_change, server_change, detected_at, status, resolution, error
		 FROM sync_conflicts WHERE id = ?`, id)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict %s: %w", id, err)
	}
	return c, nil
}

// ListPendingConflicts returns unresolved conflicts for a user, oldest
// first.
func (s *SQLiteStore) ListPendingConflicts(ctx context.Context, userID string) ([]models.SyncConflict, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, entity_type, entity_id, client_change, server_change, detected_at, status, resolution, error
		 FROM sync_conflicts WHERE user_id = ? AND status = 'pending' ORDER BY detected_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending conflicts: %w", err)
	}
	defer rows.Close()

	var out []models.SyncConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// MarkConflictResolved transitions a pending conflict to resolved.
func (s *SQLiteStore) MarkConflictResolved(ctx context.Context, id string, resolution models.Strategy, resolvedBy string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE sync_conflicts SET status = 'resolved', resolution = ?, resolved_by = ?, resolved_at = ?
		 WHERE id = ? AND status = 'pending'`,
		string(resolution), resolvedBy, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark conflict resolved %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conflict %s not found or already resolved", id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConflict(row scanner) (*models.SyncConflict, error) {
	var (
		c          models.SyncConflict
		et         string
		clientJSON string
		serverJSON sql.NullString
		detectedTS string
		status     string
		resolution sql.NullString
	)
	err := row.Scan(&c.ID, &c.UserID, &et, &c.EntityID, &clientJSON, &serverJSON, &detectedTS, &status, &resolution, &c.Error)
	if err != nil {
		return nil, err
	}

	c.EntityType = models.EntityType(et)
	c.Status = models.ConflictStatus(status)
	if err := json.Unmarshal([]byte(clientJSON), &c.ClientChange); err != nil {
		return nil, fmt.Errorf("unmarshal client change: %w", err)
	}
	if serverJSON.Valid && serverJSON.String != "" {
		var sc models.Change
		if err := json.Unmarshal([]byte(serverJSON.String), &sc); err != nil {
			return nil, fmt.Errorf("unmarshal server change: %w", err)
		}
		c.ServerChange = &sc
	}
	if c.DetectedAt, err = parseTimestamp(detectedTS); err != nil {
		return nil, fmt.Errorf("parse detected_at: %w", err)
	}
	if resolution.Valid && resolution.String != "" {
		strat := models.Strategy(resolution.String)
		c.Resolution = &strat
	}
	return &c, nil
}

// InsertAuditEntry appends one row to the audit log.
func (s *SQLiteStore) InsertAuditEntry(ctx context.Context, syncID, userID, deviceID, status string, appliedCount, conflictCount int, duration time.Duration) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO audit_log (sync_id, user_id, device_id, status, applied_count, conflict_count, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		syncID, userID, deviceID, status, appliedCount, conflictCount, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
