package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func seedCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeLog(t, dir, "FactoryGame.log",
		"[2025.07.28-09.00.00:000]LogInit: start\n"+
			"[2025.07.28-09.05.00:000]LogNet: Join succeeded: Alice\n"+
			"[2025.07.28-10.00.00:000]LogInit: end\n")
	writeLog(t, dir, "FactoryGame-backup-2025.07.27-11.00.00.log",
		"[2025.07.27-11.00.00:000]LogInit: start\n"+
			"[2025.07.27-11.10.00:000]LogNet: NotifyAcceptingConnection accepted from: [198.51.100.4]:7777\n"+
			"[2025.07.27-11.10.01:000]LogNet: Join succeeded: Bob\n"+
			"[2025.07.27-11.20.00:000]LogTemp: Error: boom\n")
	writeLog(t, dir, "FactoryGame-backup-2025.07.26-08.00.00.log",
		"no timestamps in this file\n")
	writeLog(t, dir, "Other.log", "[2025.07.27-11.00.00:000]LogNet: Join succeeded: Nobody\n")
	writeLog(t, dir, "FactoryGame.txt", "[2025.07.27-11.00.00:000]LogNet: Join succeeded: Nobody\n")
	if err := os.Mkdir(filepath.Join(dir, "FactoryGame-dir.log"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return dir
}

func TestDiscover_FiltersAndSorts(t *testing.T) {
	t.Parallel()
	dir := seedCorpus(t)
	s := newTestScanner(t, Config{})

	files, err := s.Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	want := []string{
		"FactoryGame-backup-2025.07.26-08.00.00.log",
		"FactoryGame-backup-2025.07.27-11.00.00.log",
		"FactoryGame.log",
	}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Discover = %v, want %v", names, want)
	}
}

func TestScanCorpus_MissingDir(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t, Config{})

	_, err := s.ScanCorpus(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrNoLogDir) {
		t.Fatalf("err = %v, want ErrNoLogDir", err)
	}
}

func TestScanCorpus_EmptyDir(t *testing.T) {
	t.Parallel()
	s := newTestScanner(t, Config{})

	corpus, err := s.ScanCorpus(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("ScanCorpus: %v", err)
	}
	if len(corpus.Files) != 0 || len(corpus.Joins) != 0 || len(corpus.Spans) != 0 {
		t.Errorf("expected empty corpus, got %+v", corpus)
	}
}

func TestScanCorpus_MergesInFileOrder(t *testing.T) {
	t.Parallel()
	dir := seedCorpus(t)
	s := newTestScanner(t, Config{})

	corpus, err := s.ScanCorpus(context.Background(), dir)
	if err != nil {
		t.Fatalf("ScanCorpus: %v", err)
	}

	if len(corpus.Files) != 3 {
		t.Fatalf("files = %v, want 3", corpus.Files)
	}
	if len(corpus.Joins) != 2 || corpus.Joins[0].Username != "Bob" || corpus.Joins[1].Username != "Alice" {
		t.Errorf("joins = %+v, want Bob then Alice", corpus.Joins)
	}
	if len(corpus.Connections) != 1 || len(corpus.Records) != 1 {
		t.Errorf("connections = %d, records = %d, want 1 and 1", len(corpus.Connections), len(corpus.Records))
	}
	// The timestamp-free file contributes no span.
	if len(corpus.Spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(corpus.Spans))
	}
	if corpus.Spans[0].File != "FactoryGame-backup-2025.07.27-11.00.00.log" {
		t.Errorf("first span file = %q", corpus.Spans[0].File)
	}
	if len(corpus.Failed) != 0 {
		t.Errorf("failed = %v, want none", corpus.Failed)
	}
}

func TestScanCorpus_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()
	dir := seedCorpus(t)

	seq, err := newTestScanner(t, Config{Workers: 1}).ScanCorpus(context.Background(), dir)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	par, err := newTestScanner(t, Config{Workers: 4}).ScanCorpus(context.Background(), dir)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if !reflect.DeepEqual(seq, par) {
		t.Errorf("parallel result differs from sequential:\nseq=%+v\npar=%+v", seq, par)
	}
}

func TestScanCorpus_SkipsUnreadableFile(t *testing.T) {
	t.Parallel()
	dir := seedCorpus(t)
	// A dangling symlink is listed by Discover but fails to open.
	if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "FactoryGame-broken.log")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	s, err := NewScanner(Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	corpus, err := s.ScanCorpus(context.Background(), dir)
	if err != nil {
		t.Fatalf("ScanCorpus: %v", err)
	}
	if len(corpus.Files) != 4 {
		t.Errorf("files = %v, want 4 discovered", corpus.Files)
	}
	if !reflect.DeepEqual(corpus.Failed, []string{"FactoryGame-broken.log"}) {
		t.Errorf("failed = %v, want the broken link", corpus.Failed)
	}
	if len(corpus.Joins) != 2 {
		t.Errorf("joins = %d, want 2 from the readable files", len(corpus.Joins))
	}
}

func TestScanCorpus_Progress(t *testing.T) {
	t.Parallel()
	dir := seedCorpus(t)

	var mu sync.Mutex
	seen := map[string]bool{}
	s := newTestScanner(t, Config{Workers: 2, Progress: func(file string) {
		mu.Lock()
		seen[file] = true
		mu.Unlock()
	}})

	if _, err := s.ScanCorpus(context.Background(), dir); err != nil {
		t.Fatalf("ScanCorpus: %v", err)
	}
	if len(seen) != 3 || !seen["FactoryGame.log"] {
		t.Errorf("progress saw %v, want all three files", seen)
	}
}

func TestScanCorpus_Cancelled(t *testing.T) {
	t.Parallel()
	dir := seedCorpus(t)
	s := newTestScanner(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ScanCorpus(ctx, dir); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
