package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Durable keys.
const (
	KeyPersonalCount     = "personalCount"
	KeyPendingIncrements = "pendingIncrements"
	KeyLastSynced        = "lastSynced"
)

// GetString returns the value stored under key. ok is false when the key has
// never been written.
func (s *Store) GetString(key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetString(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
		 updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// GetInt reads key as a base-10 integer. Absent or unparseable values read
// as zero; only storage failures are returned.
func (s *Store) GetInt(key string) (int64, error) {
	v, ok, err := s.GetString(key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *Store) SetInt(key string, n int64) error {
	return s.SetString(key, strconv.FormatInt(n, 10))
}

// Values returns every stored key, ordered by key.
func (s *Store) Values() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
