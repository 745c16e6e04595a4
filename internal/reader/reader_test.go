package reader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

type fakeGetter struct {
	pages map[string]string
}

func (f *fakeGetter) Get(_ context.Context, url string) ([]byte, error) {
	p, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(p), nil
}

const articlePage = `<!DOCTYPE html>
<html><head><title>Understanding Coroutine Scopes</title></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<h1>Understanding Coroutine Scopes</h1>
<p>Structured concurrency in Kotlin ties the lifetime of every coroutine to a scope. When the scope is cancelled, every child coroutine is cancelled with it, which keeps background work from leaking past the screen that started it.</p>
<p>The <strong>viewModelScope</strong> extension gives each ViewModel its own scope that is cancelled in onCleared. Launching work there means you rarely have to track jobs by hand, and failures propagate to the parent as you would expect.</p>
<p>For work that must outlive a screen, prefer an application scope injected through your dependency graph rather than GlobalScope, so tests can replace it with a test dispatcher and assert on completion.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestRead(t *testing.T) {
	r := New(&fakeGetter{pages: map[string]string{
		"https://example.com/scopes": articlePage,
	}})
	text, err := r.Read(context.Background(), "https://example.com/scopes")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(text, "Structured concurrency") {
		t.Errorf("missing body text: %q", text)
	}
	if !strings.Contains(text, "**viewModelScope**") {
		t.Errorf("expected markdown emphasis: %q", text)
	}
	if strings.Contains(text, "Copyright") {
		t.Errorf("footer leaked into text: %q", text)
	}
}

// topicPage is articlePage with every mention of the subject replaced, so
// each page's text is distinguishable.
func topicPage(topic string) string {
	return strings.ReplaceAll(articlePage, "Structured concurrency", "Structured "+topic)
}

func TestReadConcurrent(t *testing.T) {
	pages := make(map[string]string)
	for i := range 8 {
		pages[fmt.Sprintf("https://example.com/%d", i)] = topicPage(fmt.Sprintf("topic%d", i))
	}
	r := New(&fakeGetter{pages: pages})

	var wg sync.WaitGroup
	errs := make(chan error, 8*20)
	for round := range 20 {
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				link := fmt.Sprintf("https://example.com/%d", i)
				text, err := r.Read(context.Background(), link)
				if err != nil {
					errs <- fmt.Errorf("round %d %s: %w", round, link, err)
					return
				}
				if want := fmt.Sprintf("Structured topic%d", i); !strings.Contains(text, want) {
					errs <- fmt.Errorf("round %d %s: missing %q", round, link, want)
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestReadRejectsRelativeLink(t *testing.T) {
	r := New(&fakeGetter{})
	if _, err := r.Read(context.Background(), "/issues/issue-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadFetchError(t *testing.T) {
	r := New(&fakeGetter{})
	if _, err := r.Read(context.Background(), "https://example.com/missing"); err == nil {
		t.Fatal("expected error")
	}
}

func TestReadTruncates(t *testing.T) {
	r := New(&fakeGetter{pages: map[string]string{"https://example.com/scopes": articlePage}})
	r.MaxLen = 40
	text, err := r.Read(context.Background(), "https://example.com/scopes")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(text) > 40 {
		t.Errorf("len = %d, want <= 40", len(text))
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := "héllo"
	if got := truncate(s, 2); got != "h" {
		t.Errorf("truncate = %q, want %q", got, "h")
	}
	if got := truncate(s, 3); got != "hé" {
		t.Errorf("truncate = %q, want %q", got, "hé")
	}
	if got := truncate(s, 10); got != s {
		t.Errorf("truncate = %q", got)
	}
}
