package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/satis/internal/model"
)

// ErrNoLogDir is returned when the log directory cannot be listed.
var ErrNoLogDir = errors.New("ingest: log directory not readable")

// Discover lists the files in dir whose base name matches the scanner's
// pattern, in lexicographic order.
func (s *Scanner) Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoLogDir, err)
	}

	// os.ReadDir already returns entries sorted by name.
	var files []string
	for _, e := range entries {
		if e.IsDir() || !s.match.Match(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// ScanCorpus discovers and scans every log file in dir. Unreadable files are
// logged and skipped; only a missing directory or a cancelled context fails
// the scan. Results are merged in file order whatever the worker count, so
// the output is identical to a sequential scan.
func (s *Scanner) ScanCorpus(ctx context.Context, dir string) (*model.CorpusResult, error) {
	files, err := s.Discover(dir)
	if err != nil {
		return nil, err
	}

	results := make([]*model.FileResult, len(files))
	errs := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if s.cfg.Progress != nil {
				s.cfg.Progress(filepath.Base(path))
			}
			// Each goroutine owns slot i; no locking needed.
			results[i], errs[i] = s.ScanFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	corpus := &model.CorpusResult{Files: make([]string, 0, len(files))}
	for i, path := range files {
		corpus.Files = append(corpus.Files, filepath.Base(path))
		if errs[i] != nil {
			s.logger.Error().Err(errs[i]).Str("file", filepath.Base(path)).Msg("skipping unreadable log file")
			corpus.Failed = append(corpus.Failed, filepath.Base(path))
			continue
		}
		mergeFile(corpus, results[i])
	}
	return corpus, nil
}

func mergeFile(corpus *model.CorpusResult, res *model.FileResult) {
	corpus.Joins = append(corpus.Joins, res.Joins...)
	corpus.Connections = append(corpus.Connections, res.Connections...)
	corpus.Records = append(corpus.Records, res.Records...)
	if span, ok := res.Span(); ok {
		corpus.Spans = append(corpus.Spans, span)
	}
}
