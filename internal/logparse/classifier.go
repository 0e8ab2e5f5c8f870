package logparse

import (
	"strings"
	"time"

	"github.com/tinytelemetry/satis/internal/model"
)

// Markers for join and connection lines.
const (
	JoinMarker       = "LogNet: Join succeeded:"
	ConnectionMarker = "NotifyAcceptingConnection accepted from:"

	joinPrefix = "Join succeeded:"
	fromPrefix = "from: ["
)

// Kind tags the variant held by an Event.
type Kind int

const (
	KindNone Kind = iota
	KindJoin
	KindConnection
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindConnection:
		return "connection"
	case KindRecord:
		return "record"
	default:
		return "none"
	}
}

// Event is the result of classifying one line. Exactly the field matching
// Kind is set; KindNone carries nothing.
type Event struct {
	Kind       Kind
	Join       *model.JoinEvent
	Connection *model.ConnectionEvent
	Record     *model.LogRecord
}

// Line is one decoded log line with its parsed timestamp.
type Line struct {
	Text    string
	Time    time.Time
	HasTime bool
	File    string
}

// Matcher claims lines carrying its marker. A claimed line stops
// classification even when no event could be extracted from it.
type Matcher interface {
	Name() string
	Match(line Line) (ev Event, claimed bool)
}

// Classifier applies an ordered list of matchers; the first claim wins.
type Classifier struct {
	matchers []Matcher
}

// NewClassifier builds a classifier from matchers in priority order.
func NewClassifier(matchers ...Matcher) *Classifier {
	return &Classifier{matchers: matchers}
}

// DefaultClassifier returns the join, connection, severity matcher chain.
// messageLimit bounds the length of record messages; <= 0 uses the default.
func DefaultClassifier(messageLimit int) *Classifier {
	if messageLimit <= 0 {
		messageLimit = defaultMaxLength
	}
	return NewClassifier(
		JoinMatcher{},
		ConnectionMatcher{},
		SeverityMatcher{MaxLength: messageLimit},
	)
}

// Matchers returns the classifier's matchers in priority order.
func (c *Classifier) Matchers() []Matcher {
	out := make([]Matcher, len(c.matchers))
	copy(out, c.matchers)
	return out
}

// Classify returns the event for line. Lines without a timestamp never
// produce an event.
func (c *Classifier) Classify(line Line) Event {
	if !line.HasTime {
		return Event{}
	}
	for _, m := range c.matchers {
		if ev, claimed := m.Match(line); claimed {
			return ev
		}
	}
	return Event{}
}

// JoinMatcher extracts the username from join lines.
type JoinMatcher struct{}

func (JoinMatcher) Name() string { return "join" }

func (JoinMatcher) Match(line Line) (Event, bool) {
	if !strings.Contains(line.Text, JoinMarker) {
		return Event{}, false
	}
	idx := strings.Index(line.Text, joinPrefix)
	username := strings.TrimSpace(line.Text[idx+len(joinPrefix):])
	if username == "" {
		return Event{}, true
	}
	return Event{
		Kind: KindJoin,
		Join: &model.JoinEvent{
			Time:     line.Time,
			Username: username,
			File:     line.File,
		},
	}, true
}

// ConnectionMatcher extracts the bracketed origin address of accepted
// connections.
type ConnectionMatcher struct{}

func (ConnectionMatcher) Name() string { return "connection" }

func (ConnectionMatcher) Match(line Line) (Event, bool) {
	if !strings.Contains(line.Text, ConnectionMarker) {
		return Event{}, false
	}
	addr, ok := bracketedAfter(line.Text, fromPrefix)
	if !ok {
		return Event{}, true
	}
	return Event{
		Kind: KindConnection,
		Connection: &model.ConnectionEvent{
			Time:    line.Time,
			Address: addr,
			Kind:    model.ConnectionKindAttempt,
		},
	}, true
}

// SeverityMatcher turns error and warning lines into log records.
type SeverityMatcher struct {
	MaxLength int
}

func (SeverityMatcher) Name() string { return "severity" }

func (m SeverityMatcher) Match(line Line) (Event, bool) {
	if !HasSeverityMarker(line.Text) {
		return Event{}, false
	}
	return Event{
		Kind: KindRecord,
		Record: &model.LogRecord{
			Time:     line.Time,
			Severity: ExtractSeverityFromText(line.Text),
			Message:  TruncateMessage(line.Text, m.MaxLength),
			File:     line.File,
		},
	}, true
}

// bracketedAfter returns the non-empty text between prefix (which ends in
// '[') and the next ']'.
func bracketedAfter(text, prefix string) (string, bool) {
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], prefix)
		if idx < 0 {
			return "", false
		}
		rest := text[start+idx+len(prefix):]
		end := strings.IndexByte(rest, ']')
		if end > 0 {
			return rest[:end], true
		}
		start += idx + 1
	}
	return "", false
}
