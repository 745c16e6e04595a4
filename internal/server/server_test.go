package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ehrlich-b/droidweekly/internal/fetch"
	"github.com/ehrlich-b/droidweekly/internal/repository"
	"github.com/ehrlich-b/droidweekly/internal/store"
)

type site struct {
	mu    sync.Mutex
	pages map[string]string
	down  bool
}

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

type harness struct {
	site *site
	repo *repository.Repository
	srv  *Server
	api  *httptest.Server
}

func setup(t *testing.T, secret []byte) *harness {
	t.Helper()
	h := &harness{site: &site{pages: map[string]string{
		"/":                 fixture(t, "latest.html"),
		"/issues/issue-302": fixture(t, "old.html"),
	}}}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.site.mu.Lock()
		defer h.site.mu.Unlock()
		if h.site.down {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		page, ok := h.site.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}))
	t.Cleanup(upstream.Close)

	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h.repo = repository.New(st, fetch.New(fetch.Options{}), upstream.URL)
	h.srv = New(h.repo, st, secret)
	h.api = httptest.NewServer(h.srv.Handler())
	t.Cleanup(h.api.Close)
	return h
}

func getJSON(t *testing.T, url, token string, v any) int {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestLatest(t *testing.T) {
	h := setup(t, nil)
	var res repository.Result
	if code := getJSON(t, h.api.URL+"/issues/latest", "", &res); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if res.IssueID != 399 || res.Source != repository.SourceRemote {
		t.Errorf("result = %d/%s", res.IssueID, res.Source)
	}
	if len(res.Articles) != 4 {
		t.Errorf("articles = %d, want 4", len(res.Articles))
	}

	res = repository.Result{}
	getJSON(t, h.api.URL+"/issues/latest", "", &res)
	if res.Source != repository.SourceCache {
		t.Errorf("second load source = %s, want cache", res.Source)
	}
}

func TestIssueByID(t *testing.T) {
	h := setup(t, nil)

	var res repository.Result
	if code := getJSON(t, h.api.URL+"/issues/302", "", &res); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if res.IssueID != 302 || len(res.Articles) != 3 {
		t.Errorf("result = %d with %d articles", res.IssueID, len(res.Articles))
	}

	var e map[string]string
	if code := getJSON(t, h.api.URL+"/issues/abc", "", &e); code != http.StatusBadRequest {
		t.Errorf("abc status = %d", code)
	}
	if code := getJSON(t, h.api.URL+"/issues/5?cached=1", "", &e); code != http.StatusNotFound {
		t.Errorf("uncached status = %d", code)
	}
	if code := getJSON(t, h.api.URL+"/issues/555", "", &e); code != http.StatusNotFound {
		t.Errorf("missing upstream status = %d", code)
	}
	if e["error"] == "" {
		t.Error("expected error message")
	}
}

func TestLatestSiteDown(t *testing.T) {
	h := setup(t, nil)
	h.site.mu.Lock()
	h.site.down = true
	h.site.mu.Unlock()
	var e map[string]string
	if code := getJSON(t, h.api.URL+"/issues/latest", "", &e); code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", code)
	}
}

func TestListIssues(t *testing.T) {
	h := setup(t, nil)
	getJSON(t, h.api.URL+"/issues/latest", "", nil)

	var resp refsResponse
	if code := getJSON(t, h.api.URL+"/issues", "", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Latest != 399 {
		t.Errorf("latest = %d", resp.Latest)
	}
	if len(resp.Issues) != 4 || resp.Issues[0].ID != 399 {
		t.Errorf("issues = %+v", resp.Issues)
	}
}

func TestSearch(t *testing.T) {
	h := setup(t, nil)
	getJSON(t, h.api.URL+"/issues/302", "", nil)

	var resp searchResponse
	if code := getJSON(t, h.api.URL+"/search?q=room", "", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(resp.Articles) != 1 || resp.Articles[0].Title != "Room Migrations" {
		t.Errorf("articles = %+v", resp.Articles)
	}

	resp = searchResponse{}
	getJSON(t, h.api.URL+"/search?q=nothingmatches", "", &resp)
	if resp.Articles == nil || len(resp.Articles) != 0 {
		t.Errorf("want empty list, got %+v", resp.Articles)
	}

	if code := getJSON(t, h.api.URL+"/search", "", nil); code != http.StatusBadRequest {
		t.Errorf("missing q status = %d", code)
	}
}

type fixedWatch int

func (f fixedWatch) Last() int { return int(f) }

func TestStatus(t *testing.T) {
	h := setup(t, nil)
	h.srv.Watch = fixedWatch(399)
	getJSON(t, h.api.URL+"/issues/latest", "", nil)

	var resp statusResponse
	if code := getJSON(t, h.api.URL+"/status", "", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Latest != 399 || resp.CachedIssues != 1 {
		t.Errorf("status = %+v", resp)
	}
	if resp.WatchLast == nil || *resp.WatchLast != 399 {
		t.Errorf("watch_last = %v", resp.WatchLast)
	}
	if len(resp.RecentLoads) != 1 || resp.RecentLoads[0].Source != "remote" {
		t.Errorf("recent loads = %+v", resp.RecentLoads)
	}
}

func TestAuth(t *testing.T) {
	secret := []byte("test-secret")
	h := setup(t, secret)

	if code := getJSON(t, h.api.URL+"/status", "", nil); code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", code)
	}
	if code := getJSON(t, h.api.URL+"/status", "garbage", nil); code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", code)
	}
	other, _, err := MintToken([]byte("other"), "me", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if code := getJSON(t, h.api.URL+"/status", other, nil); code != http.StatusUnauthorized {
		t.Errorf("foreign token status = %d", code)
	}

	tok, exp, err := MintToken(secret, "me", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("exp = %v", exp)
	}
	if code := getJSON(t, h.api.URL+"/status", tok, nil); code != http.StatusOK {
		t.Errorf("header token status = %d", code)
	}
	if code := getJSON(t, h.api.URL+"/status?token="+tok, "", nil); code != http.StatusOK {
		t.Errorf("query token status = %d", code)
	}
}

func TestTokens(t *testing.T) {
	secret := []byte("s3cret")
	tok, _, err := MintToken(secret, "alice", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ValidateToken(secret, tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("subject = %q", claims.Subject)
	}

	expired, _, _ := MintToken(secret, "alice", -time.Minute)
	if _, err := ValidateToken(secret, expired); err == nil {
		t.Error("expected expired token to fail")
	}
	if _, _, err := MintToken(nil, "alice", time.Minute); err == nil {
		t.Error("expected error without secret")
	}
}

func TestEvents(t *testing.T) {
	h := setup(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(h.api.URL, "http")+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	go func() {
		resp, err := http.Get(h.api.URL + "/issues/latest")
		if err == nil {
			resp.Body.Close()
		}
	}()

	var kinds []repository.EventKind
	for {
		var ev repository.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read event: %v (got %v)", err, kinds)
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == repository.EventArticles && len(ev.Articles) != 4 {
			t.Errorf("articles event carries %d articles", len(ev.Articles))
		}
		if ev.Kind == repository.EventLoaded {
			if !ev.OK || ev.IssueID != 399 {
				t.Errorf("loaded event = %+v", ev)
			}
			break
		}
	}
	want := []repository.EventKind{repository.EventRefs, repository.EventArticles, repository.EventLoaded}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestServeShutdown(t *testing.T) {
	h := setup(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/status"
	if code := getJSON(t, url, "", nil); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
