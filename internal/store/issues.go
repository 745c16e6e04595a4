package store

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

// IssueRow is a known issue reference. FetchedAt is nil until the issue's
// articles have been written to the cache.
type IssueRow struct {
	issue.Ref
	FetchedAt *time.Time
}

// UpsertRefs records issue references. Existing titles are kept when the new
// ref has none.
func (s *Store) UpsertRefs(refs []issue.Ref) error {
	if len(refs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert refs: %w", err)
	}
	defer tx.Rollback()
	for _, r := range refs {
		if r.ID <= 0 {
			continue
		}
		path := r.Path
		if path == "" {
			path = issue.PathFor(r.ID)
		}
		if _, err := tx.Exec(`INSERT INTO issues (id, title, path) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = CASE WHEN excluded.title != '' THEN excluded.title ELSE issues.title END,
				path = excluded.path`, r.ID, r.Title, path); err != nil {
			return fmt.Errorf("upsert ref %d: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert refs: %w", err)
	}
	return nil
}

// MarkFetched stamps an issue as cached, creating its row if needed.
func (s *Store) MarkFetched(id int, at time.Time) error {
	_, err := s.db.Exec(`INSERT INTO issues (id, title, path, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET fetched_at = excluded.fetched_at`,
		id, fmt.Sprintf("Issue #%d", id), issue.PathFor(id), at.UTC().Format(timeFmt))
	if err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	return nil
}

// ListRefs returns known issues, newest first. n <= 0 means all.
func (s *Store) ListRefs(n int) ([]IssueRow, error) {
	if n <= 0 {
		n = -1
	}
	rows, err := s.db.Query(`SELECT id, title, path, fetched_at FROM issues ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	defer rows.Close()
	var out []IssueRow
	for rows.Next() {
		var r IssueRow
		var fetched *string
		if err := rows.Scan(&r.ID, &r.Title, &r.Path, &fetched); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		r.FetchedAt = parseTimePtr(fetched)
		out = append(out, r)
	}
	return out, rows.Err()
}
