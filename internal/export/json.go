package export

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/sadopc/tally/internal/store"
)

type jsonExport struct {
	ExportedAt string      `json:"exported_at"`
	Count      int         `json:"count"`
	Total      int64       `json:"total"`
	Entries    []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Count     int64  `json:"count"`
	Timestamp int64  `json:"timestamp"`
	Time      string `json:"time"`
}

// WriteJSON writes an indented document with a summary header. Timestamps
// are kept as epoch milliseconds alongside a readable RFC 3339 form.
func WriteJSON(w io.Writer, entries []store.HistoryEntry) error {
	doc := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(entries),
		Entries:    make([]jsonEntry, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Total += e.Count
		doc.Entries = append(doc.Entries, jsonEntry{
			ID:        e.ID,
			Type:      string(e.Type),
			Count:     e.Count,
			Timestamp: e.Timestamp.UnixMilli(),
			Time:      e.Timestamp.Local().Format(time.RFC3339),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func ToJSON(entries []store.HistoryEntry, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	defer f.Close()

	if err := WriteJSON(f, entries); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return f.Close()
}
