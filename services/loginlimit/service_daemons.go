package loginlimit

import (
	"context"
	"log/slog"
	"time"
)

// staleAfter is how long an attempt row is kept after its last update.
// Any block is long expired by then; the row is just clutter.
const staleAfter = 24 * time.Hour

// StartDaemons launches the hourly prune of stale attempt rows.
func (s *Service) StartDaemons(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruned, err := s.store.PruneStale(ctx, s.now().Add(-staleAfter))
				if err != nil {
					slog.WarnContext(ctx, "failed to prune login attempts", "err", err)
					continue
				}
				if pruned > 0 {
					slog.InfoContext(ctx, "pruned stale login attempts", "rows", pruned)
				}
			}
		}
	}()
}
