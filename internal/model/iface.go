package model

import "time"

// RunInfo describes one completed analysis run in the history store.
type RunInfo struct {
	ID          string
	AnalyzedAt  time.Time
	LogDir      string
	Files       int
	Players     int
	Joins       int
	Errors      int
	Connections int
	Gaps        int
}

// RunWriter persists a finished run. Implementations must write the run
// atomically: either every row of the run is stored or none is.
type RunWriter interface {
	InsertRun(run RunInfo, corpus *CorpusResult, sessions []Session, gaps []LoggingGap, patterns []ErrorPattern) error
}

// RunReader lists previously stored runs, newest first, together with the
// per-player join counts and error patterns of one run.
type RunReader interface {
	RecentRuns(limit int) ([]RunInfo, error)
	PlayerJoinCounts(runID string) (map[string]int64, error)
	RunPatterns(runID string, limit int) ([]ErrorPattern, error)
}
