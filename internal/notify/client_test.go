package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestNewBareTopic(t *testing.T) {
	c := New("my-secret-topic", "", "issue")
	if c.url != "https://ntfy.sh/my-secret-topic" {
		t.Fatalf("got %q", c.url)
	}
}

func TestNewFullURL(t *testing.T) {
	c := New("https://ntfy.example.com/mytopic", "tok123", "issue")
	if c.url != "https://ntfy.example.com/mytopic" {
		t.Fatalf("got %q", c.url)
	}
	if c.token != "tok123" {
		t.Fatalf("got token %q", c.token)
	}
}

func TestEventFiltering(t *testing.T) {
	c := New("t", "", " issue , error ")
	if !c.Enabled(EventIssue) || !c.Enabled(EventError) {
		t.Fatal("issue and error should be enabled")
	}
	if c.Enabled(EventStale) {
		t.Fatal("stale should not be enabled")
	}
	if len(New("t", "", "").events) != 0 {
		t.Fatal("expected no events")
	}
}

func TestFilteredEventsDoNotPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not have been called")
	}))
	defer srv.Close()
	c := New(srv.URL, "", "")
	ctx := context.Background()
	if err := c.NewIssue(ctx, 400, "x", ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Stale(ctx, 399, errors.New("down")); err != nil {
		t.Fatal(err)
	}
	if err := c.Failed(ctx, errors.New("down")); err != nil {
		t.Fatal(err)
	}
}

func TestNewIssuePost(t *testing.T) {
	var mu sync.Mutex
	var gotTitle, gotBody, gotPriority, gotTags, gotClick, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		gotTags = r.Header.Get("Tags")
		gotClick = r.Header.Get("Click")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL, "mytoken", "issue")
	err := c.NewIssue(context.Background(), 400, "Testing Coroutines", "https://androidweekly.net/issues/issue-400")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotTitle != "Android Weekly #400 is out" {
		t.Fatalf("title = %q", gotTitle)
	}
	if gotBody != "Testing Coroutines" {
		t.Fatalf("body = %q", gotBody)
	}
	if gotPriority != "default" {
		t.Fatalf("priority = %q", gotPriority)
	}
	if gotTags != "newspaper" {
		t.Fatalf("tags = %q", gotTags)
	}
	if gotClick != "https://androidweekly.net/issues/issue-400" {
		t.Fatalf("click = %q", gotClick)
	}
	if gotAuth != "Bearer mytoken" {
		t.Fatalf("auth = %q", gotAuth)
	}
}

func TestNewIssueEmptyHeadline(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "issue")
	if err := c.NewIssue(context.Background(), 400, "", ""); err != nil {
		t.Fatal(err)
	}
	if gotBody != "A new issue is available." {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestFailedPost(t *testing.T) {
	var gotTitle, gotPriority, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotPriority = r.Header.Get("Priority")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "error")
	if err := c.Failed(context.Background(), errors.New("connection refused")); err != nil {
		t.Fatal(err)
	}
	if gotTitle != "Android Weekly refresh failed" || gotPriority != "high" {
		t.Fatalf("title = %q priority = %q", gotTitle, gotPriority)
	}
	if gotBody != "connection refused" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestStalePost(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "stale")
	if err := c.Stale(context.Background(), 399, errors.New("HTTP 503")); err != nil {
		t.Fatal(err)
	}
	if gotBody != "serving cached issue #399: HTTP 503" {
		t.Fatalf("body = %q", gotBody)
	}
}

func TestSendTestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "issue")
	err := c.SendTest(context.Background())
	if err == nil {
		t.Fatal("expected error for 403")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("error = %q", err)
	}
}

func TestNoAuthHeaderWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := New(srv.URL, "", "issue")
	c.SendTest(context.Background())
	if gotAuth != "" {
		t.Fatalf("expected no auth header, got %q", gotAuth)
	}
}

func TestGenerateTopic(t *testing.T) {
	topic := GenerateTopic()
	if !strings.HasPrefix(topic, "dw-") || len(topic) != 19 {
		t.Fatalf("topic = %q", topic)
	}
	if topic == GenerateTopic() {
		t.Fatal("two topics should not be identical")
	}
}
