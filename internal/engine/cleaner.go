package engine

import (
	"context"
	"time"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/metrics"
)

// RunCleaner periodically removes archived segments older than Retention.
// It returns when ctx is cancelled.
func (qe *QueryEngine) RunCleaner(ctx context.Context, interval time.Duration) {
	if qe.purge == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	qe.logger.Info().Dur("retention", qe.Retention).Dur("interval", interval).Msg("Cleaner started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if qe.Retention <= 0 {
				continue
			}
			qe.PurgeExpired()
		}
	}
}

// PurgeExpired runs one retention pass and returns the number of removed
// segments.
func (qe *QueryEngine) PurgeExpired() int {
	if qe.purge == nil || qe.Retention <= 0 {
		return 0
	}

	threshold := qe.Now().Add(-qe.Retention)
	removed, err := qe.purge(threshold)
	if err != nil {
		qe.logger.Error().Err(err).Msg("Cleaner error")
	}
	for _, name := range removed {
		qe.logger.Info().Str("segment", name).Msg("Expired segment deleted")
	}

	qe.stats.segmentsPurged.Add(int64(len(removed)))
	metrics.ObservePurge(len(removed))
	return len(removed)
}
