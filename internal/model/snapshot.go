package model

// Snapshot is the metrics document consumed by the dashboard. Its field names
// are a stable contract; add fields, never rename them.
type Snapshot struct {
	Summary           Summary              `json:"summary" yaml:"summary"`
	Players           map[string]PlayerDoc `json:"players" yaml:"players"`
	Sessions          []SessionDoc         `json:"sessions" yaml:"sessions"`
	ServerPeriods     []ServerPeriodDoc    `json:"server_periods" yaml:"server_periods"`
	LoggingGaps       []LoggingGapDoc      `json:"logging_gaps" yaml:"logging_gaps"`
	DailyActivity     map[string]int       `json:"daily_activity" yaml:"daily_activity"`
	Errors            []LogRecordDoc       `json:"errors" yaml:"errors"`
	RecentConnections []ConnectionDoc      `json:"recent_connections" yaml:"recent_connections"`
}

// Summary holds the corpus-wide counters.
type Summary struct {
	TotalLogFiles      int     `json:"total_log_files" yaml:"total_log_files"`
	TotalUniquePlayers int     `json:"total_unique_players" yaml:"total_unique_players"`
	TotalJoinEvents    int     `json:"total_join_events" yaml:"total_join_events"`
	TotalSessions      int     `json:"total_sessions" yaml:"total_sessions"`
	TotalErrors        int     `json:"total_errors" yaml:"total_errors"`
	TotalConnections   int     `json:"total_connections" yaml:"total_connections"`
	TotalLoggingGaps   int     `json:"total_logging_gaps" yaml:"total_logging_gaps"`
	LongestGapHours    float64 `json:"longest_gap_hours" yaml:"longest_gap_hours"`
	AnalysisDate       string  `json:"analysis_date" yaml:"analysis_date"`
	ServerSpanDays     int     `json:"server_span_days" yaml:"server_span_days"`
	FirstActivity      *string `json:"first_activity" yaml:"first_activity"`
	LastActivity       *string `json:"last_activity" yaml:"last_activity"`
}

// PlayerDoc is the serialized form of PlayerStats.
type PlayerDoc struct {
	TotalJoins         int     `json:"total_joins" yaml:"total_joins"`
	TotalPlaytimeHours float64 `json:"total_playtime_hours" yaml:"total_playtime_hours"`
	FirstSeen          string  `json:"first_seen" yaml:"first_seen"`
	LastSeen           string  `json:"last_seen" yaml:"last_seen"`
	AvgSessionHours    float64 `json:"avg_session_hours" yaml:"avg_session_hours"`
	MinSessionHours    float64 `json:"min_session_hours" yaml:"min_session_hours"`
	MaxSessionHours    float64 `json:"max_session_hours" yaml:"max_session_hours"`
}

// SessionDoc is the serialized form of Session.
type SessionDoc struct {
	Username        string  `json:"username" yaml:"username"`
	Start           string  `json:"start" yaml:"start"`
	End             string  `json:"end" yaml:"end"`
	DurationMinutes float64 `json:"duration_minutes" yaml:"duration_minutes"`
	Date            string  `json:"date" yaml:"date"`
}

// ServerPeriodDoc is the serialized form of FileSpan.
type ServerPeriodDoc struct {
	File          string  `json:"file" yaml:"file"`
	Start         string  `json:"start" yaml:"start"`
	End           string  `json:"end" yaml:"end"`
	DurationHours float64 `json:"duration_hours" yaml:"duration_hours"`
}

// LoggingGapDoc is the serialized form of LoggingGap.
type LoggingGapDoc struct {
	Start         string  `json:"start" yaml:"start"`
	End           string  `json:"end" yaml:"end"`
	DurationHours float64 `json:"duration_hours" yaml:"duration_hours"`
	DurationDays  float64 `json:"duration_days" yaml:"duration_days"`
	AfterFile     string  `json:"after_file" yaml:"after_file"`
	BeforeFile    string  `json:"before_file" yaml:"before_file"`
}

// LogRecordDoc is the serialized form of LogRecord.
type LogRecordDoc struct {
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Level     string `json:"level" yaml:"level"`
	Message   string `json:"message" yaml:"message"`
	File      string `json:"file" yaml:"file"`
}

// ConnectionDoc is the serialized form of ConnectionEvent.
type ConnectionDoc struct {
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	IP        string `json:"ip" yaml:"ip"`
	Type      string `json:"type" yaml:"type"`
	Country   string `json:"country,omitempty" yaml:"country,omitempty"`
}
