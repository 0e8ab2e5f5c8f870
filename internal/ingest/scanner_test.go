package ingest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/satis/internal/model"
)

const sampleLog = `Log file open, 07/27/25 11:10:40
[2025.07.27-11.10.41:000][  0]LogInit: Display: Engine initialized
[2025.07.27-11.12.00:123][ 10]LogNet: NotifyAcceptingConnection accepted from: [203.0.113.7]:7777
[2025.07.27-11.12.01:456][ 11]LogNet: Join succeeded: Alice
[2025.07.27-11.30.00:000][ 50]LogStreaming: Error: Couldn't find file for package /Game/Foo
LogNet: Join succeeded: Ghost
[2025.07.27-12.00.00:000][ 90]LogNet: Warning: high latency
[2025.07.27-12.45.10:999][120]LogInit: Display: Shutting down
`

func newTestScanner(t *testing.T, cfg Config) *Scanner {
	t.Helper()
	s, err := NewScanner(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	return s
}

func TestScanReader_Events(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t, Config{})

	res, err := s.ScanReader("FactoryGame.log", strings.NewReader(sampleLog))
	if err != nil {
		t.Fatalf("ScanReader: %v", err)
	}

	if len(res.Joins) != 1 || res.Joins[0].Username != "Alice" {
		t.Fatalf("joins = %+v, want exactly Alice", res.Joins)
	}
	if len(res.Connections) != 1 || res.Connections[0].Address != "203.0.113.7" {
		t.Fatalf("connections = %+v, want one from 203.0.113.7", res.Connections)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	if res.Records[0].Severity != model.SeverityError || res.Records[1].Severity != model.SeverityWarning {
		t.Errorf("record severities = %q, %q", res.Records[0].Severity, res.Records[1].Severity)
	}

	wantStart := time.Date(2025, 7, 27, 11, 10, 41, 0, time.UTC)
	wantEnd := time.Date(2025, 7, 27, 12, 45, 10, 999_000_000, time.UTC)
	span, ok := res.Span()
	if !ok {
		t.Fatal("expected a file span")
	}
	if !span.Start.Equal(wantStart) || !span.End.Equal(wantEnd) {
		t.Errorf("span = %v..%v, want %v..%v", span.Start, span.End, wantStart, wantEnd)
	}
}

func TestScanReader_NoTimestamps(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t, Config{})

	res, err := s.ScanReader("empty.log", strings.NewReader("LogNet: Join succeeded: Bob\nno time here\n"))
	if err != nil {
		t.Fatalf("ScanReader: %v", err)
	}
	if len(res.Joins)+len(res.Connections)+len(res.Records) != 0 {
		t.Errorf("expected no events without timestamps, got %+v", res)
	}
	if _, ok := res.Span(); ok {
		t.Error("expected no span for a file without timestamps")
	}
}

func TestScanReader_ZeroInstantTimestamp(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t, Config{})

	text := "[0001.01.01-00.00.00:000][  0]LogInit: clock not set\n" +
		"[2025.07.27-11.00.00:000][  1]LogInit: clock synced\n"
	res, err := s.ScanReader("FactoryGame.log", strings.NewReader(text))
	if err != nil {
		t.Fatalf("ScanReader: %v", err)
	}
	span, ok := res.Span()
	if !ok {
		t.Fatal("a zero-instant timestamp still starts a span")
	}
	if !span.Start.Equal(time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("span start = %v, want year 1", span.Start)
	}
	if !span.End.Equal(time.Date(2025, 7, 27, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("span end = %v", span.End)
	}
}

func TestScanReader_LossyDecoding(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t, Config{})

	input := "[2025.07.27-11.12.01:456]LogNet: Join succeeded: Bj\xffrn\r\n" +
		"[2025.07.27-11.13.00:000]LogNet: Join succeeded: Last" // no trailing newline
	res, err := s.ScanReader("bad.log", strings.NewReader(input))
	if err != nil {
		t.Fatalf("ScanReader: %v", err)
	}
	if len(res.Joins) != 2 {
		t.Fatalf("joins = %d, want 2", len(res.Joins))
	}
	if res.Joins[0].Username != "Bj\uFFFDrn" {
		t.Errorf("username = %q, want replacement character", res.Joins[0].Username)
	}
	if res.Joins[1].Username != "Last" {
		t.Errorf("username = %q, want Last", res.Joins[1].Username)
	}
}

func TestScanReader_UTF16WithBOM(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t, Config{})

	text := "[2025.07.27-11.12.01:456]LogNet: Join succeeded: Wide\n"
	units := utf16.Encode([]rune(text))
	buf := []byte{0xFF, 0xFE}
	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}

	res, err := s.ScanReader("wide.log", strings.NewReader(string(buf)))
	if err != nil {
		t.Fatalf("ScanReader: %v", err)
	}
	if len(res.Joins) != 1 || res.Joins[0].Username != "Wide" {
		t.Fatalf("joins = %+v, want Wide", res.Joins)
	}
}

func TestScanFile_Missing(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t, Config{})

	_, err := s.ScanFile(filepath.Join(t.TempDir(), "FactoryGame-missing.log"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var fe *FileError
	if !errors.As(err, &fe) {
		t.Fatalf("error type = %T, want *FileError", err)
	}
	if fe.File != "FactoryGame-missing.log" {
		t.Errorf("FileError.File = %q", fe.File)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestNewScanner_LogsMatcherChain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewScanner(Config{Workers: 3}, zerolog.New(&buf).Level(zerolog.DebugLevel)); err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"matchers":["join","connection","severity"]`, `"workers":3`, `"component":"ingest"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}
}

func TestNewScanner_BadPattern(t *testing.T) {
	t.Parallel()

	if _, err := NewScanner(Config{Pattern: "FactoryGame[.log"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}
