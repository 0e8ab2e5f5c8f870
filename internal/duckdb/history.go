package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/satis/internal/model"
)

var _ model.RunWriter = (*Store)(nil)
var _ model.RunReader = (*Store)(nil)

// InsertRun stores one run and its derived rows in a single transaction.
// A run without an ID is given a fresh UUID.
func (s *Store) InsertRun(run model.RunInfo, corpus *model.CorpusResult, sessions []model.Session, gaps []model.LoggingGap, patterns []model.ErrorPattern) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, analyzed_at, log_dir, files, players, joins, errors, connections, gaps) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AnalyzedAt.UTC(), run.LogDir, run.Files, run.Players, run.Joins, run.Errors, run.Connections, run.Gaps,
	); err != nil {
		return fmt.Errorf("run insert: %w", err)
	}

	if corpus != nil {
		if err := insertRows(ctx, tx, `INSERT INTO joins (run_id, ts, username, file) VALUES (?, ?, ?, ?)`,
			corpus.Joins, func(j model.JoinEvent) []any {
				return []any{run.ID, j.Time, j.Username, j.File}
			}); err != nil {
			return fmt.Errorf("join insert: %w", err)
		}
		if err := insertRows(ctx, tx, `INSERT INTO log_records (run_id, ts, level, message, file) VALUES (?, ?, ?, ?, ?)`,
			corpus.Records, func(r model.LogRecord) []any {
				return []any{run.ID, r.Time, string(r.Severity), r.Message, r.File}
			}); err != nil {
			return fmt.Errorf("log record insert: %w", err)
		}
		if err := insertRows(ctx, tx, `INSERT INTO connections (run_id, ts, address, country) VALUES (?, ?, ?, ?)`,
			corpus.Connections, func(c model.ConnectionEvent) []any {
				var country any
				if c.Country != "" {
					country = c.Country
				}
				return []any{run.ID, c.Time, c.Address, country}
			}); err != nil {
			return fmt.Errorf("connection insert: %w", err)
		}
	}
	if err := insertRows(ctx, tx, `INSERT INTO sessions (run_id, username, start_ts, end_ts, duration_minutes) VALUES (?, ?, ?, ?, ?)`,
		sessions, func(s model.Session) []any {
			return []any{run.ID, s.Username, s.Start, s.End, s.Duration.Minutes()}
		}); err != nil {
		return fmt.Errorf("session insert: %w", err)
	}
	if err := insertRows(ctx, tx, `INSERT INTO logging_gaps (run_id, start_ts, end_ts, after_file, before_file) VALUES (?, ?, ?, ?, ?)`,
		gaps, func(g model.LoggingGap) []any {
			return []any{run.ID, g.Start, g.End, g.AfterFile, g.BeforeFile}
		}); err != nil {
		return fmt.Errorf("gap insert: %w", err)
	}
	if err := insertRows(ctx, tx, `INSERT INTO error_patterns (run_id, severity, template, occurrences) VALUES (?, ?, ?, ?)`,
		patterns, func(p model.ErrorPattern) []any {
			return []any{run.ID, string(p.Severity), p.Template, p.Count}
		}); err != nil {
		return fmt.Errorf("pattern insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func insertRows[T any](ctx context.Context, tx *sql.Tx, query string, rows []T, args func(T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, args(r)...); err != nil {
			return err
		}
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(limit int) ([]model.RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, analyzed_at, log_dir, files, players, joins, errors, connections, gaps
		 FROM runs ORDER BY analyzed_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunInfo
	for rows.Next() {
		var r model.RunInfo
		if err := rows.Scan(&r.ID, &r.AnalyzedAt, &r.LogDir, &r.Files, &r.Players, &r.Joins, &r.Errors, &r.Connections, &r.Gaps); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PlayerJoinCounts returns the total joins per username recorded by a run.
func (s *Store) PlayerJoinCounts(runID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT username, COUNT(*) FROM joins WHERE run_id = ? GROUP BY username`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan join count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// RunPatterns returns up to limit error patterns of a run, most frequent
// first. Percentages are relative to the run's pattern total.
func (s *Store) RunPatterns(runID string, limit int) ([]model.ErrorPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, template, occurrences,
		        CAST(occurrences AS DOUBLE) * 100 / SUM(occurrences) OVER ()
		 FROM error_patterns WHERE run_id = ?
		 ORDER BY occurrences DESC, severity, template LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []model.ErrorPattern
	for rows.Next() {
		var p model.ErrorPattern
		var sev string
		if err := rows.Scan(&sev, &p.Template, &p.Count, &p.Percentage); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.Severity = model.Severity(sev)
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

// PruneRunsBefore deletes runs analyzed before cutoff together with their
// rows and returns the number of runs removed.
func (s *Store) PruneRunsBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	cutoff = cutoff.UTC()
	for _, table := range []string{"joins", "sessions", "logging_gaps", "log_records", "connections", "error_patterns"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE run_id IN (SELECT id FROM runs WHERE analyzed_at < ?)`, table)
		if _, err := tx.ExecContext(ctx, query, cutoff); err != nil {
			return 0, fmt.Errorf("prune %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE analyzed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}
