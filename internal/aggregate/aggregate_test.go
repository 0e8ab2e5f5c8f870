package aggregate

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/tinytelemetry/satis/internal/model"
	"github.com/tinytelemetry/satis/internal/timeline"
)

var fixedNow = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func ts(day, h, m int) time.Time {
	return time.Date(2025, 7, day, h, m, 0, 0, time.UTC)
}

func testCorpus() *model.CorpusResult {
	return &model.CorpusResult{
		Files: []string{"FactoryGame-backup-1.log", "FactoryGame.log"},
		Joins: []model.JoinEvent{
			{Time: ts(27, 10, 0), Username: "alice", File: "FactoryGame-backup-1.log"},
			{Time: ts(27, 10, 30), Username: "alice", File: "FactoryGame-backup-1.log"},
			{Time: ts(29, 9, 0), Username: "bob", File: "FactoryGame.log"},
		},
		Connections: []model.ConnectionEvent{
			{Time: ts(27, 9, 59), Address: "203.0.113.7", Kind: model.ConnectionKindAttempt},
		},
		Records: []model.LogRecord{
			{Time: ts(27, 11, 0), Severity: model.SeverityError, Message: "Error: boom", File: "FactoryGame-backup-1.log"},
		},
		Spans: []model.FileSpan{
			{File: "FactoryGame.log", Start: ts(29, 8, 0), End: ts(29, 10, 0)},
			{File: "FactoryGame-backup-1.log", Start: ts(27, 9, 0), End: ts(27, 12, 0)},
		},
	}
}

func build(corpus *model.CorpusResult) model.Snapshot {
	sessions := timeline.Reconstruct(corpus.Joins, timeline.DefaultSessionPolicy())
	gaps := timeline.DetectGaps(corpus.Spans, time.Hour)
	return Build(corpus, sessions, gaps, Options{Now: clock})
}

func TestBuild_Summary(t *testing.T) {
	t.Parallel()
	snap := build(testCorpus())
	s := snap.Summary

	if s.TotalLogFiles != 2 || s.TotalJoinEvents != 3 || s.TotalSessions != 3 {
		t.Errorf("files/joins/sessions = %d/%d/%d, want 2/3/3", s.TotalLogFiles, s.TotalJoinEvents, s.TotalSessions)
	}
	if s.TotalUniquePlayers != len(snap.Players) || s.TotalUniquePlayers != 2 {
		t.Errorf("unique players = %d, players map = %d, want 2", s.TotalUniquePlayers, len(snap.Players))
	}
	if s.TotalErrors != 1 || s.TotalConnections != 1 {
		t.Errorf("errors/connections = %d/%d, want 1/1", s.TotalErrors, s.TotalConnections)
	}
	if s.TotalLoggingGaps != 1 || s.LongestGapHours != 44 {
		t.Errorf("gaps = %d longest = %v, want 1 and 44", s.TotalLoggingGaps, s.LongestGapHours)
	}
	if s.AnalysisDate != "2025-08-01T12:00:00" {
		t.Errorf("analysis_date = %q", s.AnalysisDate)
	}
	if s.ServerSpanDays != 1 {
		t.Errorf("server_span_days = %d, want 1 (47h floors to 1 day)", s.ServerSpanDays)
	}
	if s.FirstActivity == nil || *s.FirstActivity != "2025-07-27T10:00:00" {
		t.Errorf("first_activity = %v", s.FirstActivity)
	}
	if s.LastActivity == nil || *s.LastActivity != "2025-07-29T09:00:00" {
		t.Errorf("last_activity = %v", s.LastActivity)
	}
}

func TestBuild_Players(t *testing.T) {
	t.Parallel()
	snap := build(testCorpus())

	alice, ok := snap.Players["alice"]
	if !ok {
		t.Fatal("alice missing from players")
	}
	// 25 minute linked session plus a 45 minute final session.
	if alice.TotalJoins != 2 {
		t.Errorf("alice joins = %d, want 2", alice.TotalJoins)
	}
	if got, want := alice.TotalPlaytimeHours, (70 * time.Minute).Hours(); got != want {
		t.Errorf("alice playtime = %v, want %v", got, want)
	}
	if got, want := alice.MinSessionHours, (25 * time.Minute).Hours(); got != want {
		t.Errorf("alice min = %v, want %v", got, want)
	}
	if got, want := alice.MaxSessionHours, 0.75; got != want {
		t.Errorf("alice max = %v, want %v", got, want)
	}
	if alice.FirstSeen != "2025-07-27T10:00:00" || alice.LastSeen != "2025-07-27T10:30:00" {
		t.Errorf("alice seen = %s..%s", alice.FirstSeen, alice.LastSeen)
	}

	joined := map[string]bool{}
	for _, j := range testCorpus().Joins {
		joined[j.Username] = true
	}
	for name := range snap.Players {
		if !joined[name] {
			t.Errorf("player %q has no join events", name)
		}
	}
}

func TestBuild_NoJoins(t *testing.T) {
	t.Parallel()
	snap := Build(&model.CorpusResult{}, nil, nil, Options{Now: clock})

	if snap.Summary.FirstActivity != nil || snap.Summary.LastActivity != nil {
		t.Error("expected null activity range without joins")
	}
	if snap.Summary.ServerSpanDays != 0 || snap.Summary.LongestGapHours != 0 {
		t.Errorf("span/longest = %d/%v, want zeros", snap.Summary.ServerSpanDays, snap.Summary.LongestGapHours)
	}
	if snap.Players == nil || snap.Sessions == nil || snap.Errors == nil || snap.DailyActivity == nil {
		t.Error("empty collections must be non-nil so they serialize as [] or {}")
	}
}

func TestBuild_OrdersServerPeriods(t *testing.T) {
	t.Parallel()
	snap := build(testCorpus())

	if len(snap.ServerPeriods) != 2 {
		t.Fatalf("server periods = %d, want 2", len(snap.ServerPeriods))
	}
	if snap.ServerPeriods[0].File != "FactoryGame-backup-1.log" {
		t.Errorf("first period = %s, want the earliest span", snap.ServerPeriods[0].File)
	}
	if snap.ServerPeriods[0].DurationHours != 3 {
		t.Errorf("duration hours = %v, want 3", snap.ServerPeriods[0].DurationHours)
	}
	gap := snap.LoggingGaps[0]
	if gap.AfterFile != "FactoryGame-backup-1.log" || gap.BeforeFile != "FactoryGame.log" {
		t.Errorf("gap files = %s -> %s", gap.AfterFile, gap.BeforeFile)
	}
	if gap.DurationDays != 44.0/24 {
		t.Errorf("gap days = %v", gap.DurationDays)
	}
}

func TestBuild_Tails(t *testing.T) {
	t.Parallel()

	corpus := &model.CorpusResult{}
	for i := 0; i < 130; i++ {
		corpus.Records = append(corpus.Records, model.LogRecord{
			Time:     ts(27, 0, 0).Add(time.Duration(i) * time.Second),
			Severity: model.SeverityWarning,
			Message:  fmt.Sprintf("Warning: %d", i),
		})
		corpus.Connections = append(corpus.Connections, model.ConnectionEvent{
			Time:    ts(27, 0, 0).Add(time.Duration(i) * time.Second),
			Address: fmt.Sprintf("10.0.0.%d", i),
			Kind:    model.ConnectionKindAttempt,
		})
	}

	snap := Build(corpus, nil, nil, Options{Now: clock})
	if len(snap.Errors) != 100 || len(snap.RecentConnections) != 50 {
		t.Fatalf("tails = %d/%d, want 100/50", len(snap.Errors), len(snap.RecentConnections))
	}
	if snap.Summary.TotalErrors != 130 || snap.Summary.TotalConnections != 130 {
		t.Errorf("totals = %d/%d, want counts before truncation", snap.Summary.TotalErrors, snap.Summary.TotalConnections)
	}
	if snap.Errors[0].Message != "Warning: 30" || snap.RecentConnections[49].IP != "10.0.0.129" {
		t.Errorf("tails keep the most recent entries: first error %q, last ip %q",
			snap.Errors[0].Message, snap.RecentConnections[49].IP)
	}

	small := Build(corpus, nil, nil, Options{Now: clock, ErrorTail: 5, ConnectionTail: 2})
	if len(small.Errors) != 5 || len(small.RecentConnections) != 2 {
		t.Errorf("custom tails = %d/%d, want 5/2", len(small.Errors), len(small.RecentConnections))
	}
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()

	a := build(testCorpus())
	b := build(testCorpus())
	if !reflect.DeepEqual(a, b) {
		t.Error("Build is not deterministic for identical input")
	}
}

func TestDailyActivity(t *testing.T) {
	t.Parallel()

	got := DailyActivity(testCorpus().Joins)
	want := map[string]int{"2025-07-27": 2, "2025-07-29": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DailyActivity = %v, want %v", got, want)
	}
}
