package assistant

import (
	"context"
	"log/slog"
	"time"

	"ltiuy-backend/lib/timezone"
)

// chatRetention bounds how long chat history is kept. Only the last
// few messages ever reach the model; the rest is retained briefly for
// continuity across sessions, not forever.
const chatRetention = 90 * 24 * time.Hour

// StartDaemons launches the chat history prune loop.
func (s *Service) StartDaemons(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(12 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruned, err := s.store.PruneBefore(ctx, timezone.Now().Add(-chatRetention))
				if err != nil {
					slog.WarnContext(ctx, "failed to prune chat history", "err", err)
					continue
				}
				if pruned > 0 {
					slog.InfoContext(ctx, "pruned old chat messages", "rows", pruned)
				}
			}
		}
	}()
}
