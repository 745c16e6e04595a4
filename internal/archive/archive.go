package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

// Crawler collects past issue references from the site archive.
type Crawler struct {
	UserAgent string
	Timeout   time.Duration
	// Pages follows rel=next pagination up to this many pages. Zero means one.
	Pages int
}

// Crawl visits archiveURL and returns every issue it links to, newest first.
func (c *Crawler) Crawl(ctx context.Context, archiveURL string) ([]issue.Ref, error) {
	col := colly.NewCollector()
	if c.UserAgent != "" {
		col.UserAgent = c.UserAgent
	}
	if c.Timeout > 0 {
		col.SetRequestTimeout(c.Timeout)
	}
	maxPages := c.Pages
	if maxPages < 1 {
		maxPages = 1
	}

	var (
		mu       sync.Mutex
		byID     = make(map[int]issue.Ref)
		visited  int
		crawlErr error
	)

	col.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		mu.Lock()
		visited++
		mu.Unlock()
	})

	col.OnHTML(`a[href*="issue-"]`, func(e *colly.HTMLElement) {
		href := e.Attr("href")
		path := issue.NormalizePath(href)
		id, err := issue.IDFromPath(path)
		if err != nil {
			return
		}
		title := strings.Join(strings.Fields(e.Text), " ")
		if title == "" {
			title = fmt.Sprintf("Issue #%d", id)
		}
		mu.Lock()
		if _, ok := byID[id]; !ok {
			byID[id] = issue.Ref{Title: title, Path: path, ID: id}
		}
		mu.Unlock()
	})

	col.OnHTML(`a[rel="next"]`, func(e *colly.HTMLElement) {
		mu.Lock()
		more := visited < maxPages
		mu.Unlock()
		if !more {
			return
		}
		if err := e.Request.Visit(e.Attr("href")); err != nil {
			slog.Debug("archive: skip next page", "href", e.Attr("href"), "err", err)
		}
	})

	col.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if crawlErr == nil {
			crawlErr = fmt.Errorf("crawl %s: %w", r.Request.URL, err)
		}
	})

	if err := col.Visit(archiveURL); err != nil {
		return nil, fmt.Errorf("crawl %s: %w", archiveURL, err)
	}
	col.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if crawlErr != nil && len(byID) == 0 {
		return nil, crawlErr
	}
	if crawlErr != nil {
		slog.Warn("archive crawl partial", "err", crawlErr, "issues", len(byID))
	}

	refs := make([]issue.Ref, 0, len(byID))
	for _, r := range byID {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID > refs[j].ID })
	return refs, nil
}
