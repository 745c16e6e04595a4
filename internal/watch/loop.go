package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ehrlich-b/droidweekly/internal/issue"
	"github.com/ehrlich-b/droidweekly/internal/repository"
)

const DefaultInterval = 6 * time.Hour

// ErrStale means the site was unreachable and the cached issue was served.
var ErrStale = errors.New("site unavailable, served cached issue")

// Refresher loads the current issue. repository.Repository satisfies it.
type Refresher interface {
	LoadLatest(ctx context.Context) (*repository.Result, error)
}

// Notifier is told about new issues and outages. notify.Client satisfies it.
type Notifier interface {
	NewIssue(ctx context.Context, id int, headline, clickURL string) error
	Stale(ctx context.Context, id int, cause error) error
	Failed(ctx context.Context, cause error) error
}

// Loop refreshes the latest issue on a fixed interval and retries failures
// with exponential backoff.
type Loop struct {
	Repo     Refresher
	Notifier Notifier // optional
	Interval time.Duration
	// BaseURL builds the click-through link of new-issue notifications.
	BaseURL string

	mu     sync.Mutex
	last   int
	outage bool
}

// SetLast seeds the newest issue already known, so the first check does
// not announce it.
func (l *Loop) SetLast(id int) {
	l.mu.Lock()
	l.last = id
	l.mu.Unlock()
}

// Last is the newest issue seen by the loop.
func (l *Loop) Last() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// SetInterval changes the refresh interval from the next tick on.
func (l *Loop) SetInterval(d time.Duration) {
	l.mu.Lock()
	l.Interval = d
	l.mu.Unlock()
}

func (l *Loop) interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Interval <= 0 {
		return DefaultInterval
	}
	return l.Interval
}

// Run checks immediately, then every interval, until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			wait := l.interval()
			if err := l.Check(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if backoff := RetryBackoff(failures); backoff < wait {
					wait = backoff
				}
				failures++
				slog.Warn("refresh failed", "err", err, "retry_in", wait, "failures", failures)
			} else {
				failures = 0
			}
			timer.Reset(wait)
		}
	}
}

// Check runs one refresh and sends whatever notifications it calls for.
func (l *Loop) Check(ctx context.Context) error {
	res, err := l.Repo.LoadLatest(ctx)
	if err != nil {
		if ctx.Err() == nil && l.beginOutage() && l.Notifier != nil {
			if nerr := l.Notifier.Failed(ctx, err); nerr != nil {
				slog.Warn("notify failure", "err", nerr)
			}
		}
		return err
	}

	if res.Source == repository.SourceStale {
		if l.beginOutage() && l.Notifier != nil {
			if nerr := l.Notifier.Stale(ctx, res.IssueID, ErrStale); nerr != nil {
				slog.Warn("notify stale", "err", nerr)
			}
		}
		return fmt.Errorf("issue %d: %w", res.IssueID, ErrStale)
	}

	l.mu.Lock()
	l.outage = false
	prev := l.last
	fresh := res.IssueID > prev
	if fresh {
		l.last = res.IssueID
	}
	l.mu.Unlock()

	if !fresh {
		slog.Debug("no new issue", "latest", res.IssueID)
		return nil
	}
	slog.Info("new issue", "issue", res.IssueID, "previous", prev)
	if prev == 0 || l.Notifier == nil {
		return nil
	}
	click := ""
	if l.BaseURL != "" {
		click = strings.TrimRight(l.BaseURL, "/") + issue.PathFor(res.IssueID)
	}
	if err := l.Notifier.NewIssue(ctx, res.IssueID, headline(res.Articles), click); err != nil {
		slog.Warn("notify new issue", "issue", res.IssueID, "err", err)
	}
	return nil
}

// beginOutage reports whether this failure starts a new outage, so one
// outage sends one notification.
func (l *Loop) beginOutage() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outage {
		return false
	}
	l.outage = true
	return true
}

func headline(articles []issue.Article) string {
	for _, a := range articles {
		if a.Kind != issue.KindSection && a.Title != "" {
			return a.Title
		}
	}
	return ""
}

// RetryBackoff returns the wait before retry number n: 1s doubling, capped
// at 5 minutes.
func RetryBackoff(n int) time.Duration {
	const limit = 5 * time.Minute
	if n < 0 {
		n = 0
	}
	if n > 16 {
		return limit
	}
	d := time.Second << n
	if d > limit {
		return limit
	}
	return d
}
