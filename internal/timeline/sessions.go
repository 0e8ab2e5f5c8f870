package timeline

import (
	"sort"
	"time"

	"github.com/tinytelemetry/satis/internal/model"
)

// SessionPolicy holds the heuristic used to turn join events into sessions.
// The log never records a disconnect, so every session length is inferred
// from the spacing of a player's joins.
type SessionPolicy struct {
	// Grace is subtracted from the time to the next join.
	Grace time.Duration
	// Min is the shortest session produced from a linked join.
	Min time.Duration
	// MaxLink is the longest join spacing still treated as one sitting.
	MaxLink time.Duration
	// Isolated is used when the next join is too far away (or not later).
	Isolated time.Duration
	// Final is used for a player's last join.
	Final time.Duration
}

// DefaultSessionPolicy returns the stock heuristic.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		Grace:    model.DefaultSessionGrace,
		Min:      model.DefaultSessionMin,
		MaxLink:  model.DefaultSessionMaxLink,
		Isolated: model.DefaultSessionIsolated,
		Final:    model.DefaultSessionFinal,
	}
}

// WithDefaults returns DefaultSessionPolicy for a zero policy. Otherwise it
// fills non-positive fields from the defaults, except Grace, where zero
// disables the deduction and only a negative value is replaced.
func (p SessionPolicy) WithDefaults() SessionPolicy {
	d := DefaultSessionPolicy()
	if p == (SessionPolicy{}) {
		return d
	}
	if p.Grace < 0 {
		p.Grace = d.Grace
	}
	if p.Min <= 0 {
		p.Min = d.Min
	}
	if p.MaxLink <= 0 {
		p.MaxLink = d.MaxLink
	}
	if p.Isolated <= 0 {
		p.Isolated = d.Isolated
	}
	if p.Final <= 0 {
		p.Final = d.Final
	}
	return p
}

// Duration returns the inferred length of a session that started at start.
// next is the player's following join; hasNext is false for the last one.
func (p SessionPolicy) Duration(start, next time.Time, hasNext bool) time.Duration {
	if !hasNext {
		return p.Final
	}
	gap := next.Sub(start)
	if gap > 0 && gap <= p.MaxLink {
		return max(p.Min, gap-p.Grace)
	}
	return p.Isolated
}

// Reconstruct produces one session per join. Players are emitted in order of
// their first join in the corpus and each player's joins are stably sorted by
// time.
func Reconstruct(joins []model.JoinEvent, policy SessionPolicy) []model.Session {
	policy = policy.WithDefaults()

	var order []string
	byPlayer := make(map[string][]model.JoinEvent)
	for _, j := range joins {
		if _, ok := byPlayer[j.Username]; !ok {
			order = append(order, j.Username)
		}
		byPlayer[j.Username] = append(byPlayer[j.Username], j)
	}

	sessions := make([]model.Session, 0, len(joins))
	for _, username := range order {
		player := byPlayer[username]
		sort.SliceStable(player, func(i, j int) bool {
			return player[i].Time.Before(player[j].Time)
		})

		for i, j := range player {
			var next time.Time
			hasNext := i+1 < len(player)
			if hasNext {
				next = player[i+1].Time
			}
			d := policy.Duration(j.Time, next, hasNext)
			sessions = append(sessions, model.Session{
				Username: username,
				Start:    j.Time,
				End:      j.Time.Add(d),
				Duration: d,
			})
		}
	}
	return sessions
}
