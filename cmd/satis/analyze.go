package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/satis/internal/aggregate"
	"github.com/tinytelemetry/satis/internal/archive"
	"github.com/tinytelemetry/satis/internal/duckdb"
	"github.com/tinytelemetry/satis/internal/geoip"
	"github.com/tinytelemetry/satis/internal/ingest"
	"github.com/tinytelemetry/satis/internal/metrics"
	"github.com/tinytelemetry/satis/internal/model"
	"github.com/tinytelemetry/satis/internal/patterns"
	"github.com/tinytelemetry/satis/internal/snapshot"
	"github.com/tinytelemetry/satis/internal/timeline"
)

const (
	snapshotArchivePrefix = "satis"
	historyArchivePrefix  = "satis-history"
	summaryPatterns       = 3
)

// analyzer runs one pass of the engine: scan, derive, write the snapshot,
// then feed the optional sinks.
type analyzer struct {
	cfg    appConfig
	logger zerolog.Logger
	out    io.Writer
	now    func() time.Time

	outMu sync.Mutex
}

func newAnalyzer(cfg appConfig, logger zerolog.Logger, out io.Writer) *analyzer {
	return &analyzer{
		cfg:    cfg,
		logger: logger,
		out:    out,
		now:    time.Now,
	}
}

func (a *analyzer) run(ctx context.Context) error {
	started := a.now()
	recorder := metrics.NewRecorder()

	scanner, err := ingest.NewScanner(ingest.Config{
		Pattern:      a.cfg.FilePattern,
		Workers:      a.cfg.ScanWorkers,
		MessageLimit: a.cfg.MessageLimit,
		Progress:     a.progress,
	}, a.logger)
	if err != nil {
		return err
	}

	corpus, err := scanner.ScanCorpus(ctx, a.cfg.LogDir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", a.cfg.LogDir, err)
	}
	corpus.Connections = a.enrich(corpus.Connections)

	gaps := timeline.DetectGaps(corpus.Spans, a.cfg.GapThreshold)
	sessions := timeline.Reconstruct(corpus.Joins, a.cfg.sessionPolicy())
	snap := aggregate.Build(corpus, sessions, gaps, aggregate.Options{
		ErrorTail:      a.cfg.ErrorTail,
		ConnectionTail: a.cfg.ConnectionTail,
		Now:            a.now,
	})

	errPatterns, err := patterns.Mine(corpus.Records)
	if err != nil {
		a.logger.Warn().Err(err).Msg("error pattern mining failed")
	}

	if err := snapshot.Write(a.cfg.Output, snap, a.cfg.SnapshotFormat); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	finished := a.now()
	a.logger.Info().
		Str("path", a.cfg.Output).
		Int("files", len(corpus.Files)).
		Int("failed", len(corpus.Failed)).
		Dur("elapsed", finished.Sub(started)).
		Msg("snapshot written")

	archiver, err := archive.New(archive.Config{
		Dir:            a.cfg.ArchiveDir,
		KeepLast:       a.cfg.ArchiveKeep,
		BucketURL:      a.cfg.ArchiveBucketURL,
		S3Endpoint:     a.cfg.ArchiveS3Endpoint,
		S3Region:       a.cfg.ArchiveS3Region,
		S3AccessKey:    a.cfg.ArchiveS3AccessKey,
		S3SecretKey:    a.cfg.ArchiveS3SecretKey,
		S3SessionToken: a.cfg.ArchiveS3SessionToken,
		S3UseSSL:       a.cfg.ArchiveS3UseSSL,
	}, a.logger)
	if err != nil {
		a.logger.Warn().Err(err).Msg("archive disabled")
	}
	if archiver != nil {
		src := archive.FileSource(a.cfg.Output)
		if _, err := archiver.Archive(ctx, snapshotArchivePrefix, snapshot.Extension(a.cfg.SnapshotFormat), src); err != nil {
			a.logger.Warn().Err(err).Msg("snapshot archive failed")
		}
	}

	if a.cfg.HistoryEnabled {
		if err := a.recordHistory(ctx, finished, corpus, sessions, gaps, errPatterns, archiver); err != nil {
			recorder.HistoryFailed()
			a.logger.Warn().Err(err).Str("db", a.cfg.DBPath).Msg("history write failed")
		}
	}

	if a.cfg.MetricsTextfile != "" {
		recorder.ObserveCorpus(corpus)
		recorder.ObserveSnapshot(snap)
		recorder.ObserveRun(finished.Sub(started), finished)
		if err := recorder.SampleProcess(); err != nil {
			a.logger.Debug().Err(err).Msg("process sample failed")
		}
		if err := recorder.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			a.logger.Warn().Err(err).Msg("metrics export failed")
		}
	}

	a.outMu.Lock()
	defer a.outMu.Unlock()
	printSummary(a.out, snap, topPatterns(errPatterns, summaryPatterns), a.cfg.Output)
	return nil
}

// progress prints one line per file as its scan starts. Workers call it
// concurrently.
func (a *analyzer) progress(file string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, "Analyzing %s...\n", file)
}

// enrich adds country codes when a GeoIP database is configured. Any failure
// leaves the connections unchanged.
func (a *analyzer) enrich(conns []model.ConnectionEvent) []model.ConnectionEvent {
	if a.cfg.GeoIPDB == "" || len(conns) == 0 {
		return conns
	}
	resolver, err := geoip.Open(a.cfg.GeoIPDB)
	if err != nil {
		a.logger.Warn().Err(err).Str("path", a.cfg.GeoIPDB).Msg("geoip lookup disabled")
		return conns
	}
	defer resolver.Close()
	return resolver.Enrich(conns)
}

func (a *analyzer) recordHistory(ctx context.Context, at time.Time, corpus *model.CorpusResult, sessions []model.Session, gaps []model.LoggingGap, errPatterns []model.ErrorPattern, archiver *archive.Archiver) error {
	store, err := duckdb.NewStore(a.cfg.DBPath, a.cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	if version, pending, err := store.SchemaVersion(); err != nil {
		a.logger.Debug().Err(err).Msg("history schema status failed")
	} else {
		a.logger.Debug().Int("version", version).Int("pending", pending).Str("db", a.cfg.DBPath).Msg("history schema")
	}

	run := model.RunInfo{
		AnalyzedAt:  at.UTC(),
		LogDir:      a.cfg.LogDir,
		Files:       len(corpus.Files),
		Players:     countPlayers(corpus.Joins),
		Joins:       len(corpus.Joins),
		Errors:      len(corpus.Records),
		Connections: len(corpus.Connections),
		Gaps:        len(gaps),
	}
	if err := store.InsertRun(run, corpus, sessions, gaps, errPatterns); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := store.ApplyRetention(duckdb.RetentionConfig{
		RetentionDays: a.cfg.HistoryRetention,
		Now:           a.now,
	}, a.logger); err != nil {
		a.logger.Warn().Err(err).Msg("history retention failed")
	}

	if archiver != nil && a.cfg.ArchiveHistory {
		if _, err := archiver.Archive(ctx, historyArchivePrefix, ".duckdb", store); err != nil {
			a.logger.Warn().Err(err).Msg("history archive failed")
		}
	}
	return nil
}

func topPatterns(all []model.ErrorPattern, n int) []model.ErrorPattern {
	if len(all) > n {
		return all[:n]
	}
	return all
}

func countPlayers(joins []model.JoinEvent) int {
	seen := make(map[string]struct{}, len(joins))
	for _, j := range joins {
		seen[j.Username] = struct{}{}
	}
	return len(seen)
}
