package main

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/satis/internal/duckdb"
	"github.com/tinytelemetry/satis/internal/httpserver"
	"github.com/tinytelemetry/satis/internal/model"
)

// historyReader opens the history database for each query so the analyzer
// can take the write lock between dashboard requests.
type historyReader struct {
	path    string
	timeout time.Duration
}

func (h historyReader) RecentRuns(limit int) ([]model.RunInfo, error) {
	store, err := duckdb.NewStore(h.path, h.timeout)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.RecentRuns(limit)
}

func (h historyReader) PlayerJoinCounts(runID string) (map[string]int64, error) {
	store, err := duckdb.NewStore(h.path, h.timeout)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.PlayerJoinCounts(runID)
}

func (h historyReader) RunPatterns(runID string, limit int) ([]model.ErrorPattern, error) {
	store, err := duckdb.NewStore(h.path, h.timeout)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.RunPatterns(runID, limit)
}

func runServe(ctx context.Context, cfg appConfig, logger zerolog.Logger, out io.Writer) error {
	var runs model.RunReader
	if cfg.HistoryEnabled {
		runs = historyReader{path: cfg.DBPath, timeout: cfg.QueryTimeout}
	}

	srv := httpserver.NewServer(httpserver.Config{
		Addr:         cfg.ServeAddr,
		SnapshotPath: cfg.Output,
		DashboardDir: cfg.DashboardDir,
	}, runs, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	printServeBanner(out, cfg, cfg.HistoryEnabled)

	<-ctx.Done()
	logger.Info().Msg("shutting down dashboard server")
	return srv.Stop()
}
