package store

import (
	"fmt"
	"time"
)

// LoadEntry records one pass through the fetch-parse-cache pipeline.
type LoadEntry struct {
	ID        int64
	LoadID    string
	Timestamp time.Time
	URL       string
	IssueID   int
	Source    string
	Detail    *string
}

func (s *Store) AppendLoad(loadID, url string, issueID int, source string, detail *string) error {
	_, err := s.db.Exec("INSERT INTO load_log (load_id, timestamp, url, issue_id, source, detail) VALUES (?, ?, ?, ?, ?, ?)",
		loadID, time.Now().UTC().Format(timeFmt), url, issueID, source, detail)
	if err != nil {
		return fmt.Errorf("append load: %w", err)
	}
	return nil
}

func (s *Store) ListRecentLoads(n int) ([]*LoadEntry, error) {
	rows, err := s.db.Query(`SELECT id, load_id, timestamp, url, issue_id, source, detail
		FROM load_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list recent loads: %w", err)
	}
	defer rows.Close()
	var entries []*LoadEntry
	for rows.Next() {
		e := &LoadEntry{}
		var ts string
		if err := rows.Scan(&e.ID, &e.LoadID, &ts, &e.URL, &e.IssueID, &e.Source, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan load entry: %w", err)
		}
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
