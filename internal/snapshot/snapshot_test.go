package snapshot

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/satis/internal/model"
)

func sampleSnapshot() model.Snapshot {
	first := "2025-07-27T11:10:42.986000"
	return model.Snapshot{
		Summary: model.Summary{
			TotalLogFiles:      1,
			TotalUniquePlayers: 2,
			TotalJoinEvents:    2,
			AnalysisDate:       "2025-08-01T12:00:00",
			FirstActivity:      &first,
			LastActivity:       &first,
		},
		Players: map[string]model.PlayerDoc{
			"zed":   {TotalJoins: 1},
			"alice": {TotalJoins: 1},
		},
		Sessions:          []model.SessionDoc{},
		ServerPeriods:     []model.ServerPeriodDoc{},
		LoggingGaps:       []model.LoggingGapDoc{},
		DailyActivity:     map[string]int{"2025-07-28": 1, "2025-07-27": 1},
		Errors:            []model.LogRecordDoc{},
		RecentConnections: []model.ConnectionDoc{{Timestamp: first, IP: "203.0.113.7", Type: model.ConnectionKindAttempt}},
	}
}

func TestEncode_JSONContract(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Encode(&buf, sampleSnapshot(), FormatJSON); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out := buf.String()

	for _, key := range []string{
		`"summary"`, `"players"`, `"sessions": []`, `"server_periods": []`, `"logging_gaps": []`,
		`"daily_activity"`, `"errors": []`, `"recent_connections"`, `"first_activity": "2025-07-27T11:10:42.986000"`,
	} {
		if !strings.Contains(out, key) {
			t.Errorf("encoded snapshot missing %s", key)
		}
	}
	if strings.Contains(out, `"country"`) {
		t.Error("country must be omitted when unknown")
	}
	if !strings.Contains(out, "\n  \"summary\": {") {
		t.Error("expected two-space indentation")
	}
	if strings.Index(out, `"alice"`) > strings.Index(out, `"zed"`) {
		t.Error("player keys are not sorted")
	}
	if strings.Index(out, `"2025-07-27"`) > strings.Index(out, `"2025-07-28"`) {
		t.Error("daily activity keys are not sorted")
	}
}

func TestEncode_NullActivity(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot()
	snap.Summary.FirstActivity = nil
	snap.Summary.LastActivity = nil

	var buf bytes.Buffer
	if err := Encode(&buf, snap, FormatJSON); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(buf.String(), `"first_activity": null`) {
		t.Error("expected first_activity: null")
	}
}

func TestEncode_Deterministic(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	if err := Encode(&a, sampleSnapshot(), FormatJSON); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&b, sampleSnapshot(), FormatJSON); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("encoding the same snapshot twice produced different bytes")
	}
}

func TestEncode_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Encode(&buf, sampleSnapshot(), FormatYAML); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("yaml output does not parse: %v", err)
	}
	if _, ok := decoded["recent_connections"]; !ok {
		t.Error("yaml output missing recent_connections")
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := Encode(&bytes.Buffer{}, sampleSnapshot(), "xml")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{" yaml ", FormatYAML, false},
		{"toml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWrite_ReplacesAtomically(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "satis_metrics.json")

	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, sampleSnapshot(), FormatJSON); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Summary.TotalUniquePlayers != 2 || len(got.Players) != 2 {
		t.Errorf("read back summary = %+v", got.Summary)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the snapshot", len(entries))
	}
}

func TestWrite_MissingDirLeavesNothing(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing", "satis_metrics.json")

	if err := Write(path, sampleSnapshot(), FormatJSON); err == nil {
		t.Fatal("expected error when the destination directory does not exist")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("destination exists after failed write: %v", err)
	}
}

func TestWrite_UnknownFormatKeepsPrevious(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := os.WriteFile(path, []byte("previous"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Write(path, sampleSnapshot(), "xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "previous" {
		t.Errorf("previous snapshot modified: %q", data)
	}
}
