package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tinytelemetry/satis/internal/logparse"
	"github.com/tinytelemetry/satis/internal/model"
	"github.com/tinytelemetry/satis/internal/timestamp"
)

// Config holds tunable parameters for the scanner.
type Config struct {
	// Pattern is the glob every log file base name must match.
	Pattern string
	// Workers bounds concurrent file scans. Values <= 1 scan sequentially.
	Workers int
	// MessageLimit bounds error/warning message length in characters.
	MessageLimit int
	// Progress, when set, is called with the base name of each file as its
	// scan starts.
	Progress func(file string)
}

// FileError reports a log file that could not be read. The file contributes
// nothing to the corpus.
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Scanner turns log files into event bundles.
type Scanner struct {
	cfg        Config
	match      glob.Glob
	parser     *timestamp.Parser
	classifier *logparse.Classifier
	logger     zerolog.Logger
}

// NewScanner creates a scanner. It fails only when the file pattern does not
// compile.
func NewScanner(cfg Config, logger zerolog.Logger) (*Scanner, error) {
	if cfg.Pattern == "" {
		cfg.Pattern = model.DefaultFilePattern
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = model.DefaultMessageLimit
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	g, err := glob.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compile file pattern %q: %w", cfg.Pattern, err)
	}

	classifier := logparse.DefaultClassifier(cfg.MessageLimit)
	matchers := classifier.Matchers()
	names := make([]string, 0, len(matchers))
	for _, m := range matchers {
		names = append(names, m.Name())
	}

	s := &Scanner{
		cfg:        cfg,
		match:      g,
		parser:     timestamp.NewParser(),
		classifier: classifier,
		logger:     logger.With().Str("component", "ingest").Logger(),
	}
	s.logger.Debug().
		Str("pattern", cfg.Pattern).
		Int("workers", cfg.Workers).
		Strs("matchers", names).
		Msg("scanner ready")
	return s, nil
}

// ScanFile scans one log file. Any open or read error is returned as a
// *FileError and no partial result is kept.
func (s *Scanner) ScanFile(path string) (*model.FileResult, error) {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileError{File: name, Err: err}
	}
	defer f.Close()

	res, err := s.ScanReader(name, f)
	if err != nil {
		return nil, &FileError{File: name, Err: err}
	}
	return res, nil
}

// ScanReader scans log lines from r. Malformed UTF-8 is replaced with
// U+FFFD and a UTF-16 byte order mark switches decoding to UTF-16.
func (s *Scanner) ScanReader(name string, r io.Reader) (*model.FileResult, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	reader := bufio.NewReader(transform.NewReader(r, decoder))

	res := &model.FileResult{File: name}
	for {
		raw, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if raw != "" {
			s.scanLine(res, strings.TrimRight(raw, "\r\n"))
		}
		if errors.Is(err, io.EOF) {
			return res, nil
		}
	}
}

func (s *Scanner) scanLine(res *model.FileResult, text string) {
	ts, ok := s.parser.ParseLine(text)
	if !ok {
		return
	}
	res.Observe(ts)

	ev := s.classifier.Classify(logparse.Line{
		Text:    text,
		Time:    ts,
		HasTime: true,
		File:    res.File,
	})
	switch ev.Kind {
	case logparse.KindJoin:
		res.Joins = append(res.Joins, *ev.Join)
	case logparse.KindConnection:
		res.Connections = append(res.Connections, *ev.Connection)
	case logparse.KindRecord:
		res.Records = append(res.Records, *ev.Record)
	}
}
