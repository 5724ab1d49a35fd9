package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"insp/internal/models"
	"insp/internal/store"
)

// QueueManager owns the offline queues: an in-memory cache over the
// sync store, serialized per (user, device) key so concurrent enqueues
// never interleave into a corrupted list.
type QueueManager struct {
	store store.SyncStore

	mu      sync.Mutex
	entries map[string]*queueEntry
}

type queueEntry struct {
	mu     sync.Mutex
	loaded bool
	q      models.OfflineQueue
}

// NewQueueManager creates a QueueManager backed by the given store.
func NewQueueManager(st store.SyncStore) *QueueManager {
	return &QueueManager{store: st, entries: make(map[string]*queueEntry)}
}

func (m *QueueManager) entry(userID, deviceID string) *queueEntry {
	key := syncKey(userID, deviceID)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &queueEntry{q: models.OfflineQueue{UserID: userID, DeviceID: deviceID}}
		m.entries[key] = e
	}
	return e
}

// load populates the cache from the store on first access. A missing
// persisted queue is an empty queue, never an error.
func (e *queueEntry) load(ctx context.Context, st store.SyncStore) error {
	if e.loaded {
		return nil
	}
	q, err := st.GetOfflineQueue(ctx, e.q.UserID, e.q.DeviceID)
	if err != nil {
		return err
	}
	if q != nil {
		e.q = *q
	}
	e.loaded = true
	return nil
}

// Enqueue appends a change and persists the queue. Duplicate change IDs
// are the caller's responsibility; the queue does not dedup.
func (m *QueueManager) Enqueue(ctx context.Context, userID, deviceID string, change models.Change) error {
	e := m.entry(userID, deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.load(ctx, m.store); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	e.q.Operations = append(e.q.Operations, change)
	e.q.LastUpdated = time.Now().UTC()
	if err := m.store.SaveOfflineQueue(ctx, &e.q); err != nil {
		// Roll the append back so cache and store stay consistent.
		e.q.Operations = e.q.Operations[:len(e.q.Operations)-1]
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

// Pending returns a copy of the queued changes without removing them.
func (m *QueueManager) Pending(ctx context.Context, userID, deviceID string) ([]models.Change, error) {
	e := m.entry(userID, deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.load(ctx, m.store); err != nil {
		return nil, fmt.Errorf("pending: %w", err)
	}

	out := make([]models.Change, len(e.q.Operations))
	copy(out, e.q.Operations)
	return out, nil
}

// Depth returns the number of queued changes.
func (m *QueueManager) Depth(ctx context.Context, userID, deviceID string) (int, error) {
	ops, err := m.Pending(ctx, userID, deviceID)
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

// ClearDrained removes the drained changes from the queue by id,
// keeping anything enqueued after the caller snapshotted it. A session
// that drained its snapshot must not wipe changes that arrived while
// it ran.
func (m *QueueManager) ClearDrained(ctx context.Context, userID, deviceID string, drained []models.Change) error {
	e := m.entry(userID, deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.load(ctx, m.store); err != nil {
		return fmt.Errorf("clear drained: %w", err)
	}
	if len(drained) == 0 || len(e.q.Operations) == 0 {
		return nil
	}

	ids := make(map[string]bool, len(drained))
	for _, ch := range drained {
		ids[ch.ID] = true
	}
	var remaining []models.Change
	for _, ch := range e.q.Operations {
		if !ids[ch.ID] {
			remaining = append(remaining, ch)
		}
	}
	if len(remaining) == len(e.q.Operations) {
		return nil
	}
	if len(remaining) == 0 {
		if err := m.store.ClearOfflineQueue(ctx, userID, deviceID); err != nil {
			return fmt.Errorf("clear drained: %w", err)
		}
		e.q.Operations = nil
		e.q.LastUpdated = time.Now().UTC()
		return nil
	}

	e.q.Operations = remaining
	e.q.LastUpdated = time.Now().UTC()
	if err := m.store.SaveOfflineQueue(ctx, &e.q); err != nil {
		return fmt.Errorf("clear drained: %w", err)
	}
	return nil
}

// Clear empties both the cache and the persisted copy.
func (m *QueueManager) Clear(ctx context.Context, userID, deviceID string) error {
	e := m.entry(userID, deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := m.store.ClearOfflineQueue(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	e.q.Operations = nil
	e.q.LastUpdated = time.Now().UTC()
	e.loaded = true
	return nil
}
