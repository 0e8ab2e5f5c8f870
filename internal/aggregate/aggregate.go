// Package aggregate derives the metrics snapshot from a scanned corpus.
package aggregate

import (
	"sort"
	"time"

	"github.com/tinytelemetry/satis/internal/model"
	"github.com/tinytelemetry/satis/internal/timeline"
)

// Options controls tail sizes and the analysis clock.
type Options struct {
	ErrorTail      int
	ConnectionTail int
	// Now stamps analysis_date. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ErrorTail <= 0 {
		o.ErrorTail = model.DefaultErrorTail
	}
	if o.ConnectionTail <= 0 {
		o.ConnectionTail = model.DefaultConnectionTail
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Build assembles the snapshot. It does not modify its inputs.
func Build(corpus *model.CorpusResult, sessions []model.Session, gaps []model.LoggingGap, opts Options) model.Snapshot {
	opts = opts.withDefaults()

	stats := PlayerStatistics(corpus.Joins, sessions)
	players := make(map[string]model.PlayerDoc, len(stats))
	for _, p := range stats {
		players[p.Username] = model.PlayerDoc{
			TotalJoins:         p.Joins,
			TotalPlaytimeHours: p.Total.Hours(),
			FirstSeen:          model.FormatInstant(p.FirstSeen),
			LastSeen:           model.FormatInstant(p.LastSeen),
			AvgSessionHours:    p.Average.Hours(),
			MinSessionHours:    p.Min.Hours(),
			MaxSessionHours:    p.Max.Hours(),
		}
	}

	summary := model.Summary{
		TotalLogFiles:      len(corpus.Files),
		TotalUniquePlayers: len(players),
		TotalJoinEvents:    len(corpus.Joins),
		TotalSessions:      len(sessions),
		TotalErrors:        len(corpus.Records),
		TotalConnections:   len(corpus.Connections),
		TotalLoggingGaps:   len(gaps),
		LongestGapHours:    timeline.LongestGap(gaps).Hours(),
		AnalysisDate:       model.FormatInstant(opts.Now()),
	}
	if first, last, ok := activityRange(corpus.Joins); ok {
		f, l := model.FormatInstant(first), model.FormatInstant(last)
		summary.FirstActivity = &f
		summary.LastActivity = &l
		summary.ServerSpanDays = int(last.Sub(first) / (24 * time.Hour))
	}

	return model.Snapshot{
		Summary:           summary,
		Players:           players,
		Sessions:          sessionDocs(sessions),
		ServerPeriods:     periodDocs(corpus.Spans),
		LoggingGaps:       gapDocs(gaps),
		DailyActivity:     DailyActivity(corpus.Joins),
		Errors:            recordDocs(tail(corpus.Records, opts.ErrorTail)),
		RecentConnections: connectionDocs(tail(corpus.Connections, opts.ConnectionTail)),
	}
}

// PlayerStatistics computes per-player stats in order of first appearance.
// Players without joins never appear.
func PlayerStatistics(joins []model.JoinEvent, sessions []model.Session) []model.PlayerStats {
	var order []string
	byName := make(map[string]*model.PlayerStats)
	for _, j := range joins {
		p, ok := byName[j.Username]
		if !ok {
			p = &model.PlayerStats{Username: j.Username, FirstSeen: j.Time, LastSeen: j.Time}
			byName[j.Username] = p
			order = append(order, j.Username)
		}
		p.Joins++
		if j.Time.Before(p.FirstSeen) {
			p.FirstSeen = j.Time
		}
		if j.Time.After(p.LastSeen) {
			p.LastSeen = j.Time
		}
	}

	counts := make(map[string]int, len(byName))
	for _, s := range sessions {
		p, ok := byName[s.Username]
		if !ok {
			continue
		}
		if counts[s.Username] == 0 || s.Duration < p.Min {
			p.Min = s.Duration
		}
		if s.Duration > p.Max {
			p.Max = s.Duration
		}
		p.Total += s.Duration
		counts[s.Username]++
	}

	out := make([]model.PlayerStats, 0, len(order))
	for _, name := range order {
		p := byName[name]
		if n := counts[name]; n > 0 {
			p.Average = p.Total / time.Duration(n)
		}
		out = append(out, *p)
	}
	return out
}

// DailyActivity counts joins per calendar date.
func DailyActivity(joins []model.JoinEvent) map[string]int {
	days := make(map[string]int)
	for _, j := range joins {
		days[model.FormatDate(j.Time)]++
	}
	return days
}

func activityRange(joins []model.JoinEvent) (first, last time.Time, ok bool) {
	for i, j := range joins {
		if i == 0 || j.Time.Before(first) {
			first = j.Time
		}
		if i == 0 || j.Time.After(last) {
			last = j.Time
		}
	}
	return first, last, len(joins) > 0
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func sessionDocs(sessions []model.Session) []model.SessionDoc {
	docs := make([]model.SessionDoc, 0, len(sessions))
	for _, s := range sessions {
		docs = append(docs, model.SessionDoc{
			Username:        s.Username,
			Start:           model.FormatInstant(s.Start),
			End:             model.FormatInstant(s.End),
			DurationMinutes: s.Duration.Minutes(),
			Date:            s.Date(),
		})
	}
	return docs
}

func periodDocs(spans []model.FileSpan) []model.ServerPeriodDoc {
	ordered := make([]model.FileSpan, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start.Before(ordered[j].Start)
	})

	docs := make([]model.ServerPeriodDoc, 0, len(ordered))
	for _, s := range ordered {
		docs = append(docs, model.ServerPeriodDoc{
			File:          s.File,
			Start:         model.FormatInstant(s.Start),
			End:           model.FormatInstant(s.End),
			DurationHours: s.Duration().Hours(),
		})
	}
	return docs
}

func gapDocs(gaps []model.LoggingGap) []model.LoggingGapDoc {
	docs := make([]model.LoggingGapDoc, 0, len(gaps))
	for _, g := range gaps {
		hours := g.Duration().Hours()
		docs = append(docs, model.LoggingGapDoc{
			Start:         model.FormatInstant(g.Start),
			End:           model.FormatInstant(g.End),
			DurationHours: hours,
			DurationDays:  hours / 24,
			AfterFile:     g.AfterFile,
			BeforeFile:    g.BeforeFile,
		})
	}
	return docs
}

func recordDocs(records []model.LogRecord) []model.LogRecordDoc {
	docs := make([]model.LogRecordDoc, 0, len(records))
	for _, r := range records {
		docs = append(docs, model.LogRecordDoc{
			Timestamp: model.FormatInstant(r.Time),
			Level:     string(r.Severity),
			Message:   r.Message,
			File:      r.File,
		})
	}
	return docs
}

func connectionDocs(conns []model.ConnectionEvent) []model.ConnectionDoc {
	docs := make([]model.ConnectionDoc, 0, len(conns))
	for _, c := range conns {
		docs = append(docs, model.ConnectionDoc{
			Timestamp: model.FormatInstant(c.Time),
			IP:        c.Address,
			Type:      c.Kind,
			Country:   c.Country,
		})
	}
	return docs
}
