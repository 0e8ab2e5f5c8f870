package model

import "time"

// Defaults shared by the analyzer and the dashboard server.
const (
	DefaultFilePattern    = "FactoryGame*.log"
	DefaultOutput         = "satis_metrics.json"
	DefaultGapThreshold   = time.Hour
	DefaultErrorTail      = 100
	DefaultConnectionTail = 50
	DefaultMessageLimit   = 200
)

// Session heuristic defaults. These encode assumptions about typical play
// patterns and are approximations, not observed values.
const (
	DefaultSessionGrace    = 5 * time.Minute
	DefaultSessionMin      = 15 * time.Minute
	DefaultSessionMaxLink  = 360 * time.Minute
	DefaultSessionIsolated = 60 * time.Minute
	DefaultSessionFinal    = 45 * time.Minute
)
