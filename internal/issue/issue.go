package issue

import (
	"fmt"
	"strconv"
	"strings"
)

// NoIssue marks a load of the latest issue whose number is not known yet.
const NoIssue = -1

// Article kinds. A section row is a heading inside an issue, a sponsored row
// is a paid placement. Everything else is a regular link.
const (
	KindArticle   = "article"
	KindSection   = "section"
	KindSponsored = "sponsored"
)

// Article is one row of a newsletter issue.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	ImageURL    string `json:"image_url,omitempty"`
	FrameColor  uint32 `json:"frame_color,omitempty"` // ARGB
	IssueID     int    `json:"issue_id"`
	Position    int    `json:"position"`
	Kind        string `json:"kind"`
	Body        string `json:"body,omitempty"`
}

// Ref points at a past issue.
type Ref struct {
	Title string `json:"title"`
	Path  string `json:"path"`
	ID    int    `json:"id"`
}

// IDFromPath extracts the issue number from a path like "issues/issue-302".
func IDFromPath(path string) (int, error) {
	path = strings.TrimRight(strings.TrimSpace(path), "/")
	i := strings.LastIndex(path, "-")
	if i < 0 || i == len(path)-1 {
		return 0, fmt.Errorf("no issue number in %q", path)
	}
	id, err := strconv.Atoi(path[i+1:])
	if err != nil {
		return 0, fmt.Errorf("no issue number in %q: %w", path, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid issue number %d in %q", id, path)
	}
	return id, nil
}

// PathFor returns the canonical site path of an issue.
func PathFor(id int) string {
	return fmt.Sprintf("/issues/issue-%d", id)
}

// NormalizePath maps absolute URLs and relative hrefs onto "/issues/issue-N".
// Paths without an issue number are returned cleaned but otherwise untouched.
func NormalizePath(href string) string {
	href = strings.TrimSpace(href)
	if i := strings.Index(href, "://"); i >= 0 {
		rest := href[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			href = rest[j:]
		} else {
			href = "/"
		}
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	if id, err := IDFromPath(href); err == nil && strings.Contains(href, "issue-") {
		return PathFor(id)
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return href
}

// ParseColor converts "#RRGGBB" or "#AARRGGBB" into an ARGB value. Six-digit
// colors get a fully opaque alpha. Strings without '#' are read as decimal.
func ParseColor(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty color")
	}
	if s[0] != '#' {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse color %q: %w", s, err)
		}
		return uint32(n), nil
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse color %q: %w", s, err)
	}
	switch len(s) {
	case 7:
		return uint32(v) | 0xff000000, nil
	case 9:
		return uint32(v), nil
	default:
		return 0, fmt.Errorf("unknown color %q", s)
	}
}
