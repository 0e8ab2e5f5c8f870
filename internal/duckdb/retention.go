package duckdb

import (
	"time"

	"github.com/rs/zerolog"
)

// RetentionConfig holds configuration for history pruning.
type RetentionConfig struct {
	RetentionDays int
	Now           func() time.Time
}

// ApplyRetention deletes runs older than the configured number of days.
// A non-positive RetentionDays disables pruning.
func (s *Store) ApplyRetention(conf RetentionConfig, logger zerolog.Logger) (int64, error) {
	if conf.RetentionDays <= 0 {
		return 0, nil
	}
	now := time.Now
	if conf.Now != nil {
		now = conf.Now
	}

	cutoff := now().Add(-time.Duration(conf.RetentionDays) * 24 * time.Hour)
	n, err := s.PruneRunsBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info().Int64("runs", n).Int("retention_days", conf.RetentionDays).Msg("pruned expired history runs")
	}
	return n, nil
}
