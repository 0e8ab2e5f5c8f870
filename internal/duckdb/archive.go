package duckdb

import (
	"errors"
	"fmt"

	"github.com/tinytelemetry/satis/internal/archive"
)

// ErrInMemoryStore is returned when an in-memory history is asked for a file copy.
var ErrInMemoryStore = errors.New("duckdb: in-memory store has no file to archive")

var _ archive.Source = (*Store)(nil)

// SnapshotTo checkpoints the WAL into the database file and copies the file
// to dstPath, so the archived history is complete without its WAL.
func (s *Store) SnapshotTo(dstPath string) error {
	s.mu.Lock()
	if s.dbPath == "" {
		s.mu.Unlock()
		return ErrInMemoryStore
	}
	ctx, cancel := s.queryCtx()
	_, err := s.db.ExecContext(ctx, "CHECKPOINT")
	cancel()
	dbPath := s.dbPath
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("checkpoint history: %w", err)
	}

	if err := archive.FileSource(dbPath).SnapshotTo(dstPath); err != nil {
		return fmt.Errorf("copy history: %w", err)
	}
	return nil
}
