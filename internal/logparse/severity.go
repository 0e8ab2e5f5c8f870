package logparse

import (
	"strings"
	"unicode/utf8"

	"github.com/tinytelemetry/satis/internal/model"
)

// Severity markers recognised in server log lines.
const (
	ErrorMarker      = "Error:"
	WarningMarker    = "Warning:"
	ConnCloseMarker  = "LogNet: UNetConnection::Close"
	defaultMaxLength = model.DefaultMessageLimit
)

// SeverityMarkers lists every substring that turns a line into a log record.
var SeverityMarkers = []string{ErrorMarker, WarningMarker, ConnCloseMarker}

// HasSeverityMarker reports whether line contains any severity marker.
func HasSeverityMarker(line string) bool {
	for _, m := range SeverityMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

// ExtractSeverityFromText returns Error when the line carries the error
// marker anywhere, Warning otherwise. Connection-close lines are warnings.
func ExtractSeverityFromText(line string) model.Severity {
	if strings.Contains(line, ErrorMarker) {
		return model.SeverityError
	}
	return model.SeverityWarning
}

// TruncateMessage trims surrounding whitespace and cuts the message to at
// most limit characters. Cutting counts runes, not bytes.
func TruncateMessage(line string, limit int) string {
	msg := strings.TrimSpace(line)
	if limit <= 0 || utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	n := 0
	for i := range msg {
		if n == limit {
			return msg[:i]
		}
		n++
	}
	return msg
}
