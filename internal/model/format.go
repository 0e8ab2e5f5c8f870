package model

import "time"

const (
	isoSeconds = "2006-01-02T15:04:05"
	isoMicros  = "2006-01-02T15:04:05.000000"
	isoDate    = "2006-01-02"
)

// FormatInstant renders t as a zone-less ISO-8601 string with microsecond
// precision. The fraction is omitted when it is zero.
func FormatInstant(t time.Time) string {
	if t.Nanosecond()/1000 == 0 {
		return t.Format(isoSeconds)
	}
	return t.Format(isoMicros)
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(isoDate)
}
