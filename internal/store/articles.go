package store

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

const articleCols = `id, issue_id, position, title, description, link, image_url, frame_color, kind, body`

// CachedArticle is an article row together with its row id.
type CachedArticle struct {
	ID int64
	issue.Article
}

// ArticlesByIssue returns the cached rows of an issue in page order. An empty
// result is a cache miss.
func (s *Store) ArticlesByIssue(issueID int) ([]CachedArticle, error) {
	rows, err := s.db.Query(`SELECT `+articleCols+` FROM articles WHERE issue_id = ? ORDER BY position`, issueID)
	if err != nil {
		return nil, fmt.Errorf("articles by issue: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// HasIssue reports whether any article of the issue is cached.
func (s *Store) HasIssue(issueID int) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM articles WHERE issue_id = ?", issueID).Scan(&n); err != nil {
		return false, fmt.Errorf("has issue: %w", err)
	}
	return n > 0, nil
}

// ReplaceIssue swaps the cached rows of an issue for articles in one
// transaction. Positions are renumbered from 1 in slice order.
func (s *Store) ReplaceIssue(issueID int, articles []issue.Article) ([]CachedArticle, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin replace issue: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM articles WHERE issue_id = ?", issueID); err != nil {
		return nil, fmt.Errorf("clear issue %d: %w", issueID, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO articles (issue_id, position, title, description, link, image_url, frame_color, kind, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	out := make([]CachedArticle, 0, len(articles))
	for i, a := range articles {
		a.IssueID = issueID
		a.Position = i + 1
		if a.Kind == "" {
			a.Kind = issue.KindArticle
		}
		res, err := stmt.Exec(a.IssueID, a.Position, a.Title, a.Description, a.Link, a.ImageURL, int64(a.FrameColor), a.Kind, a.Body)
		if err != nil {
			return nil, fmt.Errorf("insert article %d/%d: %w", issueID, a.Position, err)
		}
		id, _ := res.LastInsertId()
		out = append(out, CachedArticle{ID: id, Article: a})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace issue: %w", err)
	}
	return out, nil
}

// SetArticleBody stores extracted page text for an article.
func (s *Store) SetArticleBody(id int64, body string) error {
	_, err := s.db.Exec("UPDATE articles SET body = ? WHERE id = ?", body, id)
	if err != nil {
		return fmt.Errorf("set article body: %w", err)
	}
	return nil
}

// DeleteIssue drops every cached row of an issue.
func (s *Store) DeleteIssue(issueID int) error {
	_, err := s.db.Exec("DELETE FROM articles WHERE issue_id = ?", issueID)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	return nil
}

// CachedIssueIDs lists issues with at least one cached article, newest first.
func (s *Store) CachedIssueIDs() ([]int, error) {
	rows, err := s.db.Query("SELECT DISTINCT issue_id FROM articles ORDER BY issue_id DESC")
	if err != nil {
		return nil, fmt.Errorf("cached issue ids: %w", err)
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan issue id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Search matches query against title, description and body. Every
// whitespace separated token must match as a word prefix, case-insensitively.
func (s *Store) Search(query string, limit int) ([]CachedArticle, error) {
	match := matchExpr(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT a.id, a.issue_id, a.position, a.title, a.description, a.link, a.image_url, a.frame_color, a.kind, a.body
		FROM articles_fts f JOIN articles a ON a.id = f.rowid
		WHERE articles_fts MATCH ?
		ORDER BY f.rank, a.issue_id DESC, a.position
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// matchExpr turns free text into an FTS5 expression of quoted prefix terms so
// user input can never be read as query syntax.
func matchExpr(query string) string {
	var terms []string
	for _, tok := range strings.Fields(query) {
		if strings.IndexFunc(tok, isWordRune) < 0 {
			continue
		}
		tok = strings.ReplaceAll(tok, `"`, `""`)
		terms = append(terms, `"`+tok+`"*`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func scanArticles(rows *sql.Rows) ([]CachedArticle, error) {
	var out []CachedArticle
	for rows.Next() {
		var a CachedArticle
		var color int64
		if err := rows.Scan(&a.ID, &a.IssueID, &a.Position, &a.Title, &a.Description, &a.Link,
			&a.ImageURL, &color, &a.Kind, &a.Body); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.FrameColor = uint32(color)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Articles strips row ids.
func Articles(cached []CachedArticle) []issue.Article {
	out := make([]issue.Article, len(cached))
	for i, c := range cached {
		out[i] = c.Article
	}
	return out
}
