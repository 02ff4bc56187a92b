package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/Saail289/gitsight/internal/store"
)

const retentionWorkerInterval = 1 * time.Hour

// StartRetentionWorker periodically deletes sessions whose last activity
// is older than the retention window. A zero retention disables the
// worker entirely.
func StartRetentionWorker(ctx context.Context, repo store.Repository, retention time.Duration) {
	if retention == 0 {
		slog.Info("Session retention disabled, keeping sessions forever")
		return
	}

	slog.Info("Starting session retention worker",
		"interval", retentionWorkerInterval,
		"retention", retention,
	)

	ticker := time.NewTicker(retentionWorkerInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweepIdleSessions(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Session retention worker shutting down")
				return
			}
		}
	}()
}

func sweepIdleSessions(ctx context.Context, repo store.Repository, retention time.Duration) {
	deleted, err := repo.DeleteIdleSessions(ctx, retention)
	if err != nil {
		slog.Error("Failed to sweep idle sessions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Swept idle sessions", "deleted", deleted, "retention", retention)
	}
}
