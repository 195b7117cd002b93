package assetstore

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const sweepBatchSize = 200

// SweepOlderThan deletes assets created before the horizon. It is the
// second line of defense behind per-request cleanup: anything still
// listed after the TTL is a leak. Returns the number of assets removed.
func (s *Store) SweepOlderThan(ctx context.Context, horizon time.Time) (int, error) {
	removed := 0
	for {
		stale, err := s.meta.ListOlderThan(ctx, horizon, sweepBatchSize)
		if err != nil {
			return removed, err
		}
		if len(stale) == 0 {
			return removed, nil
		}
		for _, asset := range stale {
			if err := s.Delete(ctx, asset.Key); err != nil {
				s.logger.Warn().Err(err).Str("key", asset.Key).Msg("sweep: delete failed")
				continue
			}
			removed++
		}
		if len(stale) < sweepBatchSize {
			return removed, nil
		}
	}
}

// Sweeper periodically reclaims stale temporary assets.
type Sweeper struct {
	store    *Store
	ttl      time.Duration
	interval time.Duration
	logger   zerolog.Logger
}

// NewSweeper builds a sweeper over the store.
func NewSweeper(store *Store, ttl, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, ttl: ttl, interval: interval, logger: logger}
}

// Run sweeps on a fixed interval until the context is canceled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := w.store.SweepOlderThan(ctx, time.Now().Add(-w.ttl))
			if err != nil {
				w.logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			if removed > 0 {
				w.logger.Info().Int("removed", removed).Msg("swept stale temporary assets")
			}
		}
	}
}
