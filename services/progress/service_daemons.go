package progress

import (
	"context"
	"log/slog"
	"time"

	"ltiuy-backend/lib/timezone"
)

// StartDaemons launches the background hygiene loop. It stops when the
// context is cancelled.
func (s *Service) StartDaemons(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.opts.HygieneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runHygiene(ctx)
			}
		}
	}()
}

func (s *Service) runHygiene(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "runHygiene")
	defer span.End()

	cutoff := timezone.Now().Add(-s.opts.HistoryRetention)
	pruned, err := s.store.PruneHistory(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		slog.WarnContext(ctx, "failed to prune snapshot history", "err", err)
		return
	}
	if pruned > 0 {
		slog.InfoContext(ctx, "pruned snapshot history", "rows", pruned)
	}
}
