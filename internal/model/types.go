package model

import "time"

// Severity is the level assigned to an error/warning log record.
type Severity string

const (
	SeverityError   Severity = "Error"
	SeverityWarning Severity = "Warning"
)

// ConnectionKindAttempt is the only connection kind the server logs expose.
const ConnectionKindAttempt = "connection_attempt"

// JoinEvent is one successful player join observed in a log file.
type JoinEvent struct {
	Time     time.Time
	Username string
	File     string
}

// ConnectionEvent is one accepted inbound connection.
type ConnectionEvent struct {
	Time    time.Time
	Address string
	Kind    string
	Country string // ISO code, empty when unknown
}

// LogRecord is an error or warning line kept for the snapshot tail.
type LogRecord struct {
	Time     time.Time
	Severity Severity
	Message  string
	File     string
}

// FileSpan is the observed time range covered by one log file.
type FileSpan struct {
	File  string
	Start time.Time
	End   time.Time
}

// Duration returns the covered duration.
func (s FileSpan) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// LoggingGap is an interval with no log coverage between two files.
type LoggingGap struct {
	Start      time.Time
	End        time.Time
	AfterFile  string
	BeforeFile string
}

// Duration returns the length of the gap.
func (g LoggingGap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// Session is an inferred interval of a player's presence. It is derived from
// join events only; no disconnect is ever observed.
type Session struct {
	Username string
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Date returns the calendar date of the session start.
func (s Session) Date() string {
	return FormatDate(s.Start)
}

// PlayerStats aggregates the joins and sessions of one username.
type PlayerStats struct {
	Username  string
	Joins     int
	Total     time.Duration
	Average   time.Duration
	Min       time.Duration
	Max       time.Duration
	FirstSeen time.Time
	LastSeen  time.Time
}

// ErrorPattern is a drain3 template shared by error or warning records.
type ErrorPattern struct {
	Severity   Severity
	Template   string
	Count      int
	Percentage float64
}
