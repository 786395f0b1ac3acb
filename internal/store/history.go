package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AppendHistory inserts e and evicts the oldest entries beyond maxEntries.
// A maxEntries of zero or less disables eviction.
func (s *Store) AppendHistory(e HistoryEntry, maxEntries int) error {
	if e.Count <= 0 {
		return fmt.Errorf("append history: count must be positive, got %d", e.Count)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("append history: unknown type %q", e.Type)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append history: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO history (id, count, type, timestamp) VALUES (?, ?, ?, ?)`,
		e.ID, e.Count, string(e.Type), e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if maxEntries > 0 {
		_, err = tx.Exec(
			`DELETE FROM history WHERE id NOT IN (
				SELECT id FROM history ORDER BY timestamp DESC, rowid DESC LIMIT ?
			)`, maxEntries,
		)
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}
	return tx.Commit()
}

// ListHistory returns entries newest first. Both bounds of the filter are
// inclusive.
func (s *Store) ListHistory(f HistoryFilter) ([]HistoryEntry, error) {
	query := `SELECT id, count, type, timestamp FROM history`
	var conds []string
	var args []any

	if f.From != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if f.To != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.To.UnixMilli())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HistoryInRange returns entries whose timestamp lies in [from, to].
func (s *Store) HistoryInRange(from, to time.Time) ([]HistoryEntry, error) {
	return s.ListHistory(HistoryFilter{From: &from, To: &to})
}

// HistoryTotal sums the counts of all retained entries.
func (s *Store) HistoryTotal() (int64, error) {
	var total int64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(count), 0) FROM history`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("history total: %w", err)
	}
	return total, nil
}

func (s *Store) ClearHistory() error {
	if _, err := s.db.Exec(`DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func scanHistory(rows *sql.Rows) (HistoryEntry, error) {
	var e HistoryEntry
	var typ string
	var ms int64
	if err := rows.Scan(&e.ID, &e.Count, &typ, &ms); err != nil {
		return e, fmt.Errorf("scan history: %w", err)
	}
	e.Type = EntryType(typ)
	e.Timestamp = time.UnixMilli(ms)
	return e, nil
}
