package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper removes stale login attempt records
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// CleanupManager periodically sweeps expired lockouts and stale failure counts
type CleanupManager struct {
	sweeper  Sweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sweeper Sweeper, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task and blocks until stopped
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := cm.sweeper.Sweep(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep login attempts", slog.Any("error", err))
		return
	}

	if removed > 0 {
		cm.logger.Info("login attempt sweep completed", slog.Int("records_removed", removed))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
