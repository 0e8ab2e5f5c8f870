package model

import "time"

// FileResult is the event bundle produced by scanning one log file.
type FileResult struct {
	File        string
	Joins       []JoinEvent
	Connections []ConnectionEvent
	Records     []LogRecord

	// Start and End are valid only once a timestamp has been observed.
	Start   time.Time
	End     time.Time
	hasSpan bool
}

// Span returns the file's observed span and whether one exists.
func (r *FileResult) Span() (FileSpan, bool) {
	if !r.hasSpan {
		return FileSpan{}, false
	}
	return FileSpan{File: r.File, Start: r.Start, End: r.End}, true
}

// Observe extends the file's span to include t.
func (r *FileResult) Observe(t time.Time) {
	if !r.hasSpan {
		r.Start, r.End, r.hasSpan = t, t, true
		return
	}
	if t.Before(r.Start) {
		r.Start = t
	}
	if t.After(r.End) {
		r.End = t
	}
}

// CorpusResult is the concatenation of all file results in scan order.
type CorpusResult struct {
	Files       []string // every discovered file, including failed ones
	Joins       []JoinEvent
	Connections []ConnectionEvent
	Records     []LogRecord
	Spans       []FileSpan
	Failed      []string
}
