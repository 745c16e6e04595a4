package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

const DefaultDebounce = 300 * time.Millisecond

// Func runs one search. repository.Repository.Search satisfies it.
type Func func(ctx context.Context, query string) ([]issue.Article, error)

// Results is one emitted answer. An empty Query is a reset.
type Results struct {
	Query    string
	Articles []issue.Article
}

// Searcher turns a stream of keystroke-level queries into search results:
// bursts are debounced, repeats are skipped, and a newer query cancels the
// one in flight so stale results never arrive after fresh ones.
type Searcher struct {
	search   Func
	debounce time.Duration
}

func New(fn Func, debounce time.Duration) *Searcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Searcher{search: fn, debounce: debounce}
}

type answer struct {
	seq int
	res Results
}

// Run consumes queries until the channel closes or ctx ends. A query still
// waiting out its debounce when queries closes is searched, and its results
// emitted, before the returned channel closes.
func (s *Searcher) Run(ctx context.Context, queries <-chan string) <-chan Results {
	out := make(chan Results)
	go s.loop(ctx, queries, out)
	return out
}

func (s *Searcher) loop(ctx context.Context, queries <-chan string, out chan<- Results) {
	defer close(out)

	var (
		in      = queries
		timer   *time.Timer
		timerC  <-chan time.Time
		pending string
		last    string
		seq     int
		running bool
		cancel  context.CancelFunc = func() {}
		answers = make(chan answer, 1)
	)
	defer func() { cancel() }()

	emit := func(r Results) bool {
		select {
		case out <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	launch := func() {
		q := pending
		if q == last {
			return
		}
		last = q
		cancel()
		seq++
		var runCtx context.Context
		runCtx, cancel = context.WithCancel(ctx)
		running = true
		go s.run(runCtx, seq, q, answers)
	}

	for {
		if in == nil && timerC == nil && !running {
			return
		}
		select {
		case <-ctx.Done():
			return

		case q, ok := <-in:
			if !ok {
				in = nil
				if timerC != nil {
					timer.Stop()
					timerC = nil
					launch()
				}
				continue
			}
			pending = strings.TrimSpace(q)
			if pending == "" {
				// cleared box: drop whatever is pending or running and reset
				if timer != nil {
					timer.Stop()
				}
				timerC = nil
				cancel()
				seq++
				running = false
				last = ""
				if !emit(Results{}) {
					return
				}
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			launch()

		case a := <-answers:
			if a.seq != seq {
				continue
			}
			running = false
			if !emit(a.res) {
				return
			}
		}
	}
}

func (s *Searcher) run(ctx context.Context, seq int, q string, answers chan<- answer) {
	arts, err := s.search(ctx, q)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		slog.Debug("search failed", "query", q, "err", err)
		arts = nil
	}
	select {
	case answers <- answer{seq: seq, res: Results{Query: q, Articles: arts}}:
	case <-ctx.Done():
	}
}
