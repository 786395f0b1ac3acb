package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sadopc/tally/internal/store"
)

func sampleData() []store.HistoryEntry {
	now := time.Now().Truncate(time.Millisecond)
	return []store.HistoryEntry{
		{ID: "c3", Count: 1, Type: store.EntryIncrement, Timestamp: now},
		{ID: "b2", Count: 500, Type: store.EntryBulk, Timestamp: now.Add(-time.Hour)},
		{ID: "a1", Count: 1, Type: store.EntryIncrement, Timestamp: now.Add(-26 * time.Hour)},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	return records
}

// ============================================================
// CSV
// ============================================================

func TestToCSV(t *testing.T) {
	entries := sampleData()
	path := filepath.Join(t.TempDir(), "history.csv")

	if err := ToCSV(entries, path); err != nil {
		t.Fatalf("ToCSV: %v", err)
	}

	records := readCSV(t, path)
	if len(records) != 4 {
		t.Fatalf("expected 4 rows (1 header + 3 data), got %d", len(records))
	}

	for i, h := range csvHeader {
		if records[0][i] != h {
			t.Fatalf("header[%d] = %q, want %q", i, records[0][i], h)
		}
	}

	row := records[2]
	if row[0] != "b2" {
		t.Fatalf("ID = %q, want b2", row[0])
	}
	if row[1] != "bulk" {
		t.Fatalf("Type = %q, want bulk", row[1])
	}
	if row[2] != "500" {
		t.Fatalf("Count = %q, want 500", row[2])
	}
	ts, err := time.Parse(time.RFC3339, row[3])
	if err != nil {
		t.Fatalf("timestamp is not RFC3339: %q", row[3])
	}
	if !ts.Equal(entries[1].Timestamp.Truncate(time.Second)) {
		t.Fatalf("timestamp = %v, want %v", ts, entries[1].Timestamp)
	}
	if row[4] != entries[1].Timestamp.Local().Format(time.DateOnly) {
		t.Fatalf("Date = %q", row[4])
	}
}

func TestToCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")

	if err := ToCSV(nil, path); err != nil {
		t.Fatal(err)
	}
	if records := readCSV(t, path); len(records) != 1 {
		t.Fatalf("expected 1 row (header only), got %d", len(records))
	}
}

func TestToCSVBadPath(t *testing.T) {
	if err := ToCSV(nil, "/nonexistent/dir/file.csv"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

func TestWriteCSVToWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleData()[:1]); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "c3,increment,1,") {
		t.Fatalf("row = %q", lines[1])
	}
}

// ============================================================
// JSON
// ============================================================

func TestToJSON(t *testing.T) {
	entries := sampleData()
	path := filepath.Join(t.TempDir(), "history.json")

	if err := ToJSON(entries, path); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var result jsonExport
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if result.Count != 3 {
		t.Fatalf("count = %d, want 3", result.Count)
	}
	if result.Total != 502 {
		t.Fatalf("total = %d, want 502", result.Total)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(result.Entries))
	}

	e := result.Entries[1]
	if e.ID != "b2" || e.Type != "bulk" || e.Count != 500 {
		t.Fatalf("entry = %+v", e)
	}
	if e.Timestamp != entries[1].Timestamp.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", e.Timestamp, entries[1].Timestamp.UnixMilli())
	}
}

func TestToJSONEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")

	if err := ToJSON(nil, path); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"entries": []`) {
		t.Fatalf("empty export should have an empty entries array: %s", data)
	}

	var result jsonExport
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if result.Count != 0 || result.Total != 0 {
		t.Fatalf("count = %d total = %d, want 0", result.Count, result.Total)
	}
}

func TestToJSONBadPath(t *testing.T) {
	if err := ToJSON(nil, "/nonexistent/dir/file.json"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

func TestToJSONPrettyPrinted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pretty.json")
	if err := ToJSON(sampleData(), path); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "\n  ") {
		t.Fatal("JSON should be indented")
	}
}

func TestToJSONValidTimestamps(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleData()); err != nil {
		t.Fatal(err)
	}

	var result jsonExport
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatal(err)
	}

	if _, err := time.Parse(time.RFC3339, result.ExportedAt); err != nil {
		t.Fatalf("exported_at is not valid RFC3339: %q", result.ExportedAt)
	}
	for _, e := range result.Entries {
		if _, err := time.Parse(time.RFC3339, e.Time); err != nil {
			t.Fatalf("time is not valid RFC3339: %q", e.Time)
		}
	}
}
