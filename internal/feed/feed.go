package feed

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

// Feed reads the newsletter RSS to discover issue numbers.
type Feed struct {
	URL     string
	parser  *gofeed.Parser
	timeout time.Duration
}

// New creates a feed reader. client may be nil.
func New(url, userAgent string, client *http.Client, timeout time.Duration) *Feed {
	p := gofeed.NewParser()
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	if client != nil {
		p.Client = client
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Feed{URL: url, parser: p, timeout: timeout}
}

// Latest returns the issues listed in the feed, newest first.
func (f *Feed) Latest(ctx context.Context) ([]issue.Ref, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	parsed, err := f.parser.ParseURLWithContext(f.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.URL, err)
	}
	return Refs(parsed), nil
}

// LatestID returns the newest issue number in the feed.
func (f *Feed) LatestID(ctx context.Context) (int, error) {
	refs, err := f.Latest(ctx)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, fmt.Errorf("feed %s lists no issues", f.URL)
	}
	return refs[0].ID, nil
}

// Refs extracts issue refs from feed items whose link points at an issue.
func Refs(parsed *gofeed.Feed) []issue.Ref {
	seen := make(map[int]bool)
	var refs []issue.Ref
	for _, item := range parsed.Items {
		link := item.Link
		if !strings.Contains(link, "issue-") {
			continue
		}
		path := issue.NormalizePath(link)
		id, err := issue.IDFromPath(path)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = fmt.Sprintf("Issue #%d", id)
		}
		refs = append(refs, issue.Ref{Title: title, Path: path, ID: id})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].ID > refs[j].ID })
	return refs
}
