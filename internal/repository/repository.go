package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/droidweekly/internal/issue"
	"github.com/ehrlich-b/droidweekly/internal/parse"
	"github.com/ehrlich-b/droidweekly/internal/store"
)

// Source says where the articles of a Result came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
	// SourceStale is the last cached latest issue, served because the site
	// could not be fetched or parsed.
	SourceStale Source = "stale"
)

// ErrNotCached is returned when a page fails and no cached copy can stand in.
var ErrNotCached = errors.New("not cached")

// Fetcher fetches raw page bodies. fetch.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// LatestFinder names the newest issue when the homepage does not.
type LatestFinder interface {
	LatestID(ctx context.Context) (int, error)
}

// BodyReader extracts a linked article's text.
type BodyReader interface {
	Read(ctx context.Context, link string) (string, error)
}

// Result is one issue as returned by a load.
type Result struct {
	IssueID  int             `json:"issue_id"`
	Articles []issue.Article `json:"articles"`
	Refs     []issue.Ref     `json:"refs,omitempty"`
	Source   Source          `json:"source"`
}

// Repository is the fetch-parse-cache pipeline: cache-first reads, write
// through on remote success, stale cache on remote failure.
type Repository struct {
	store   *store.Store
	fetcher Fetcher
	baseURL string

	// Feed is optional.
	Feed LatestFinder
	// Reader is optional; when set, newly cached articles get their linked
	// page text stored for search.
	Reader            BodyReader
	ReaderConcurrency int
	// SearchLimit caps Search results. Zero means 50.
	SearchLimit int

	hub hub
	now func() time.Time

	// background enrichment started by loads
	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

func New(s *store.Store, f Fetcher, baseURL string) *Repository {
	ctx, cancel := context.WithCancel(context.Background())
	return &Repository{
		store:    s,
		fetcher:  f,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Wait blocks until body enrichment started by earlier loads has finished.
func (r *Repository) Wait() {
	r.bg.Wait()
}

// Close cancels background enrichment and waits for it to stop.
func (r *Repository) Close() {
	r.bgCancel()
	r.bg.Wait()
}

// LoadLatest loads the issue currently on the homepage.
func (r *Repository) LoadLatest(ctx context.Context) (*Result, error) {
	return r.load(ctx, r.baseURL, issue.NoIssue)
}

// LoadIssue loads a past issue by its site path, e.g. "issues/issue-302".
func (r *Repository) LoadIssue(ctx context.Context, subPath string) (*Result, error) {
	id, err := issue.IDFromPath(subPath)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, r.baseURL+issue.PathFor(id), id)
}

// LoadIssueID is LoadIssue by number.
func (r *Repository) LoadIssueID(ctx context.Context, id int) (*Result, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid issue number %d", id)
	}
	return r.load(ctx, r.baseURL+issue.PathFor(id), id)
}

func (r *Repository) load(ctx context.Context, url string, id int) (*Result, error) {
	loadID := uuid.NewString()
	log := slog.With("load", loadID, "url", url, "issue", id)

	res, err := r.loadOnce(ctx, loadID, url, id)
	if err != nil {
		msg := err.Error()
		log.Warn("load failed", "err", err)
		r.publish(Event{LoadID: loadID, Kind: EventLoaded, IssueID: id, OK: false, Err: msg})
		r.recordLoad(loadID, url, id, "error", &msg)
		return nil, err
	}

	log.Info("loaded", "source", res.Source, "resolved", res.IssueID, "articles", len(res.Articles))
	r.publish(Event{LoadID: loadID, Kind: EventLoaded, IssueID: res.IssueID, Source: res.Source, OK: true})
	r.recordLoad(loadID, url, res.IssueID, string(res.Source), nil)
	return res, nil
}

func (r *Repository) loadOnce(ctx context.Context, loadID, url string, id int) (*Result, error) {
	if id > 0 {
		cached, err := r.store.ArticlesByIssue(id)
		if err != nil {
			return nil, err
		}
		if len(cached) > 0 {
			return r.served(loadID, id, store.Articles(cached), nil, SourceCache), nil
		}
	}
	return r.fetchRemote(ctx, loadID, url, id)
}

func (r *Repository) fetchRemote(ctx context.Context, loadID, url string, id int) (*Result, error) {
	page, err := r.remote(ctx, url)
	if err != nil {
		if id == issue.NoIssue && ctx.Err() == nil {
			if res, ok := r.stale(loadID, err); ok {
				return res, nil
			}
		}
		return nil, fmt.Errorf("load %s: %w", url, err)
	}

	if len(page.Refs) > 0 {
		if err := r.store.UpsertRefs(page.Refs); err != nil {
			slog.Warn("store refs", "err", err)
		}
		r.publish(Event{LoadID: loadID, Kind: EventRefs, IssueID: page.LatestID, Refs: page.Refs})
	}

	resolved := id
	if id == issue.NoIssue {
		latest := page.LatestID
		if latest == 0 && r.Feed != nil {
			if latest, err = r.Feed.LatestID(ctx); err != nil {
				slog.Warn("latest issue from feed", "err", err)
				latest = 0
			}
		}
		if latest > 0 {
			resolved = latest
			if err := r.store.PutInt(store.KeyLatestIssueID, latest); err != nil {
				slog.Warn("store latest issue id", "err", err)
			}
			cached, err := r.store.ArticlesByIssue(latest)
			if err != nil {
				return nil, err
			}
			if len(cached) > 0 {
				slog.Debug("cache hit for latest issue", "issue", latest)
				return r.served(loadID, latest, store.Articles(cached), page.Refs, SourceCache), nil
			}
		}
	}

	articles := stamp(page.Articles, resolved)
	if resolved <= 0 {
		// nowhere to file it; show it, don't cache it
		slog.Warn("latest issue number unknown, not caching", "url", url)
		return r.served(loadID, issue.NoIssue, articles, page.Refs, SourceRemote), nil
	}

	saved, err := r.store.ReplaceIssue(resolved, articles)
	if err != nil {
		slog.Error("write through", "issue", resolved, "err", err)
	} else {
		if err := r.store.MarkFetched(resolved, r.now()); err != nil {
			slog.Warn("mark fetched", "issue", resolved, "err", err)
		}
		if r.Reader != nil {
			r.enrichLater(saved)
		}
	}
	return r.served(loadID, resolved, articles, page.Refs, SourceRemote), nil
}

func (r *Repository) remote(ctx context.Context, url string) (*parse.Page, error) {
	body, err := r.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return parse.Parse(bytes.NewReader(body))
}

// stale serves the last known latest issue from the cache.
func (r *Repository) stale(loadID string, cause error) (*Result, bool) {
	last, err := r.store.GetInt(store.KeyLatestIssueID, 0)
	if err != nil || last <= 0 {
		return nil, false
	}
	cached, err := r.store.ArticlesByIssue(last)
	if err != nil || len(cached) == 0 {
		return nil, false
	}
	slog.Warn("site unavailable, serving cached issue", "issue", last, "err", cause)
	refs, _ := r.Refs()
	return r.served(loadID, last, store.Articles(cached), refs, SourceStale), true
}

func (r *Repository) served(loadID string, id int, articles []issue.Article, refs []issue.Ref, src Source) *Result {
	r.publish(Event{LoadID: loadID, Kind: EventArticles, IssueID: id, Source: src, Articles: articles})
	return &Result{IssueID: id, Articles: articles, Refs: refs, Source: src}
}

func stamp(articles []issue.Article, id int) []issue.Article {
	out := make([]issue.Article, len(articles))
	for i, a := range articles {
		a.IssueID = id
		a.Position = i + 1
		out[i] = a
	}
	return out
}

func (r *Repository) recordLoad(loadID, url string, id int, source string, detail *string) {
	if err := r.store.AppendLoad(loadID, url, id, source, detail); err != nil {
		slog.Debug("record load", "err", err)
	}
}

// Search returns cached articles matching keyword.
func (r *Repository) Search(ctx context.Context, keyword string) ([]issue.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cached, err := r.store.Search(keyword, r.SearchLimit)
	if err != nil {
		return nil, err
	}
	return store.Articles(cached), nil
}

// Refs lists the known issues, newest first.
func (r *Repository) Refs() ([]issue.Ref, error) {
	rows, err := r.store.ListRefs(0)
	if err != nil {
		return nil, err
	}
	refs := make([]issue.Ref, len(rows))
	for i, row := range rows {
		refs[i] = row.Ref
	}
	return refs, nil
}

// AddRefs records issue references found elsewhere, e.g. the archive.
func (r *Repository) AddRefs(refs []issue.Ref) error {
	if len(refs) == 0 {
		return nil
	}
	if err := r.store.UpsertRefs(refs); err != nil {
		return err
	}
	r.publish(Event{LoadID: uuid.NewString(), Kind: EventRefs, Refs: refs})
	return nil
}

// LatestID is the newest issue number seen so far, or 0.
func (r *Repository) LatestID() (int, error) {
	return r.store.GetInt(store.KeyLatestIssueID, 0)
}

// Cached returns an issue from the cache only.
func (r *Repository) Cached(id int) (*Result, error) {
	cached, err := r.store.ArticlesByIssue(id)
	if err != nil {
		return nil, err
	}
	if len(cached) == 0 {
		return nil, fmt.Errorf("issue %d: %w", id, ErrNotCached)
	}
	return &Result{IssueID: id, Articles: store.Articles(cached), Source: SourceCache}, nil
}

// Enrich fetches linked page text for cached articles of an issue that have
// none yet. It returns the number of bodies stored.
func (r *Repository) Enrich(ctx context.Context, id int) (int, error) {
	if r.Reader == nil {
		return 0, errors.New("no reader configured")
	}
	cached, err := r.store.ArticlesByIssue(id)
	if err != nil {
		return 0, err
	}
	var todo []store.CachedArticle
	for _, a := range cached {
		if a.Body == "" {
			todo = append(todo, a)
		}
	}
	return r.enrich(ctx, todo), ctx.Err()
}

// enrichLater stores linked page text for freshly cached articles once the
// load has returned. Reads are not tied to the load's context.
func (r *Repository) enrichLater(articles []store.CachedArticle) {
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		n := r.enrich(r.bgCtx, articles)
		slog.Debug("enriched articles", "stored", n, "of", len(articles))
	}()
}

func (r *Repository) enrich(ctx context.Context, articles []store.CachedArticle) int {
	limit := r.ReaderConcurrency
	if limit < 1 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	stored := 0
	for _, a := range articles {
		if a.Link == "" || a.Kind == issue.KindSection {
			continue
		}
		g.Go(func() error {
			text, err := r.Reader.Read(gctx, a.Link)
			if err != nil {
				slog.Debug("read article", "link", a.Link, "err", err)
				return nil
			}
			if text == "" {
				return nil
			}
			if err := r.store.SetArticleBody(a.ID, text); err != nil {
				slog.Warn("store article body", "id", a.ID, "err", err)
				return nil
			}
			mu.Lock()
			stored++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return stored
}

// SyncReport summarizes a backfill.
type SyncReport struct {
	Fetched int
	Skipped int
	Failed  map[int]error
}

// Sync loads every ref that is not cached yet, at most concurrency at a time.
// Individual failures are collected, not fatal.
func (r *Repository) Sync(ctx context.Context, refs []issue.Ref, concurrency int) (*SyncReport, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	rep := &SyncReport{Failed: make(map[int]error)}
	var mu sync.Mutex

	var todo []issue.Ref
	for _, ref := range refs {
		if ref.ID <= 0 {
			continue
		}
		ok, err := r.store.HasIssue(ref.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			rep.Skipped++
			continue
		}
		todo = append(todo, ref)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, ref := range todo {
		g.Go(func() error {
			_, err := r.LoadIssueID(gctx, ref.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed[ref.ID] = err
				return nil
			}
			rep.Fetched++
			return nil
		})
	}
	g.Wait()
	return rep, ctx.Err()
}
