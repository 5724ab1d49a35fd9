package engine

import (
	"context"
	"log/slog"
	"time"

	"insp/internal/models"
)

// Sweeper defaults.
const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultIdleThreshold = 15 * time.Minute
)

// Sweeper periodically drains offline queues that have sat idle: any
// queue with pending operations whose last update is older than the
// idle threshold gets a background force sync with server-wins.
type Sweeper struct {
	engine    *Engine
	interval  time.Duration
	threshold time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper over the given engine. Non-positive
// durations fall back to the defaults.
func NewSweeper(e *Engine, interval, idleThreshold time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if idleThreshold <= 0 {
		idleThreshold = DefaultIdleThreshold
	}
	return &Sweeper{engine: e, interval: interval, threshold: idleThreshold}
}

// Start launches the sweep loop in a goroutine. Call Stop to end it.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("queue sweeper started", "interval", s.interval.String(), "idle_threshold", s.threshold.String())
		for {
			select {
			case <-ctx.Done():
				slog.Info("queue sweeper stopped")
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// SweepOnce scans all persisted queues and force-syncs the idle ones.
// Per-queue failures are logged and skipped; one stuck pair must not
// starve the rest.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	queues, err := s.engine.syncs.ListOfflineQueues(ctx)
	if err != nil {
		slog.Error("sweep: list queues", "err", err)
		return
	}

	cutoff := time.Now().UTC().Add(-s.threshold)
	for _, q := range queues {
		if len(q.Operations) == 0 || q.LastUpdated.After(cutoff) {
			continue
		}
		slog.Info("sweeping idle queue",
			"user", q.UserID, "device", q.DeviceID,
			"depth", len(q.Operations), "idle_since", q.LastUpdated.Format(time.RFC3339))

		res, err := s.engine.ForceSync(ctx, q.UserID, q.DeviceID, models.SyncOptions{
			Strategy: models.StrategyServerWins,
			Priority: "low",
		})
		if err != nil {
			slog.Error("sweep: force sync", "user", q.UserID, "device", q.DeviceID, "err", err)
			continue
		}
		slog.Info("swept queue",
			"user", q.UserID, "device", q.DeviceID,
			"sync_id", res.SyncID, "status", string(res.Status),
			"applied", res.AppliedCount, "conflicts", res.ConflictCount)
	}
}
