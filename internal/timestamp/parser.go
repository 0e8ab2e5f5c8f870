package timestamp

import (
	"regexp"
	"time"
)

const (
	// secondsLayout matches the Unreal log prefix without the millisecond part,
	// e.g. "2025.07.27-11.10.42".
	secondsLayout = "2006.01.02-15.04.05"
	secondsLen    = len(secondsLayout)

	maxFractionDigits = 6
)

// bracketRegex matches the first non-empty bracketed token in a line.
var bracketRegex = regexp.MustCompile(`\[([^\]]+)\]`)

// Parser converts bracketed log timestamps into instants. Log timestamps carry
// no zone, so results are wall-clock values in the parser's location (UTC).
type Parser struct {
	loc *time.Location
}

// NewParser creates a parser that interprets timestamps as UTC.
func NewParser() *Parser {
	return &Parser{loc: time.UTC}
}

// ExtractBracketed returns the contents of the first bracketed token of line.
func ExtractBracketed(line string) (string, bool) {
	m := bracketRegex.FindStringSubmatch(line)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// ParseLine extracts the first bracketed token of line and parses it.
func (p *Parser) ParseLine(line string) (time.Time, bool) {
	raw, ok := ExtractBracketed(line)
	if !ok {
		return time.Time{}, false
	}
	return p.Parse(raw)
}

// Parse accepts "YYYY.MM.DD-HH.MM.SS:fff" (1-6 fraction digits) and falls back
// to the 19-character seconds prefix. A string matching neither yields false.
func (p *Parser) Parse(s string) (time.Time, bool) {
	if ts, ok := p.parseWithFraction(s); ok {
		return ts, true
	}
	if len(s) < secondsLen {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(secondsLayout, s[:secondsLen], p.loc)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func (p *Parser) parseWithFraction(s string) (time.Time, bool) {
	if len(s) < secondsLen+2 || s[secondsLen] != ':' {
		return time.Time{}, false
	}
	frac := s[secondsLen+1:]
	if len(frac) > maxFractionDigits {
		return time.Time{}, false
	}

	micros := 0
	for i := 0; i < maxFractionDigits; i++ {
		micros *= 10
		if i >= len(frac) {
			continue
		}
		c := frac[i]
		if c < '0' || c > '9' {
			return time.Time{}, false
		}
		micros += int(c - '0')
	}

	base, err := time.ParseInLocation(secondsLayout, s[:secondsLen], p.loc)
	if err != nil {
		return time.Time{}, false
	}
	return base.Add(time.Duration(micros) * time.Microsecond), true
}
