// Package export writes the increment history as CSV or JSON.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sadopc/tally/internal/store"
)

var csvHeader = []string{"ID", "Type", "Count", "Timestamp", "Date"}

// WriteCSV writes one row per entry in the order given.
func WriteCSV(w io.Writer, entries []store.HistoryEntry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		ts := e.Timestamp.Local()
		row := []string{
			e.ID,
			string(e.Type),
			strconv.FormatInt(e.Count, 10),
			ts.Format(time.RFC3339),
			ts.Format(time.DateOnly),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func ToCSV(entries []store.HistoryEntry, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, entries); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}
