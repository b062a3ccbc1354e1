package flow

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically expires stale pending flows so abandoned submissions
// do not accumulate and their pollers are not left waiting forever.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	// OnExpired, if set, is invoked for every resolution the sweep produces.
	OnExpired func(Result)
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Run sweeps on a fixed interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, r := range s.store.Sweep(now) {
				s.logger.Info("flow expired",
					slog.String("flow_id", r.FlowID),
					slog.Time("decided_at", r.Timestamp),
				)
				if s.OnExpired != nil {
					s.OnExpired(r)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
