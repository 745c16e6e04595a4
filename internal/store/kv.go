package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Keys used in the kv table.
const (
	KeyLatestIssueID = "latest_issue_id"
)

func (s *Store) GetString(key, def string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) PutString(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// GetInt returns def when the key is missing or not a number.
func (s *Store) GetInt(key string, def int) (int, error) {
	v, err := s.GetString(key, "")
	if err != nil {
		return def, err
	}
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, nil
	}
	return n, nil
}

func (s *Store) PutInt(key string, value int) error {
	return s.PutString(key, strconv.Itoa(value))
}
