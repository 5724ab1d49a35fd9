package engine

import (
	"sync"

	"insp/internal/models"
)

// progressTracker holds transient per-session progress, keyed by sync
// ID with a secondary index by (user, device) key. Entries exist only
// while a session is active.
type progressTracker struct {
	mu    sync.Mutex
	byID  map[string]*models.SyncProgress
	byKey map[string]string
}

func newProgressTracker() *progressTracker {
	return &progressTracker{
		byID:  make(map[string]*models.SyncProgress),
		byKey: make(map[string]string),
	}
}

func (p *progressTracker) start(key, syncID string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[syncID] = &models.SyncProgress{SyncID: syncID, Total: total}
	p.byKey[key] = syncID
}

func (p *progressTracker) setCurrent(syncID, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.byID[syncID]; ok {
		pr.CurrentOperation = label
	}
}

func (p *progressTracker) complete(syncID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.byID[syncID]; ok {
		pr.Completed++
		recalc(pr)
	}
}

func (p *progressTracker) fail(syncID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.byID[syncID]; ok {
		pr.Failed++
		recalc(pr)
	}
}

// snapshot returns a copy of the progress for a sync ID, or nil.
func (p *progressTracker) snapshot(syncID string) *models.SyncProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.byID[syncID]; ok {
		cp := *pr
		return &cp
	}
	return nil
}

// activeForKey returns the progress of the session running for a
// (user, device) key, or nil when the pair is idle.
func (p *progressTracker) activeForKey(key string) *models.SyncProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	syncID, ok := p.byKey[key]
	if !ok {
		return nil
	}
	if pr, ok := p.byID[syncID]; ok {
		cp := *pr
		return &cp
	}
	return nil
}

func (p *progressTracker) drop(key, syncID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byID, syncID)
	if p.byKey[key] == syncID {
		delete(p.byKey, key)
	}
}

func recalc(pr *models.SyncProgress) {
	if pr.Total > 0 {
		pr.Percentage = float64(pr.Completed+pr.Failed) / float64(pr.Total) * 100
	}
}
