package repository

import (
	"log/slog"
	"sync"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

type EventKind string

const (
	EventArticles EventKind = "articles"
	EventRefs     EventKind = "refs"
	EventLoaded   EventKind = "loaded"
)

// Event is what observers see while a load runs: the refs list, the article
// list and finally whether the load succeeded.
type Event struct {
	LoadID   string          `json:"load_id"`
	Kind     EventKind       `json:"kind"`
	IssueID  int             `json:"issue_id"`
	Source   Source          `json:"source,omitempty"`
	Articles []issue.Article `json:"articles,omitempty"`
	Refs     []issue.Ref     `json:"refs,omitempty"`
	OK       bool            `json:"ok"`
	Err      string          `json:"error,omitempty"`
}

const subscriberBuffer = 32

type hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

// Subscribe returns a channel of events in publish order and a func that
// unsubscribes and closes it. A subscriber that falls behind loses events
// rather than stalling loads.
func (r *Repository) Subscribe() (<-chan Event, func()) {
	h := &r.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]chan Event)
	}
	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (r *Repository) publish(ev Event) {
	h := &r.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("subscriber behind, dropping event", "subscriber", id, "kind", ev.Kind, "load", ev.LoadID)
		}
	}
}
