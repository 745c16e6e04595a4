package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ehrlich-b/droidweekly/internal/fetch"
	"github.com/ehrlich-b/droidweekly/internal/issue"
	"github.com/ehrlich-b/droidweekly/internal/parse"
	"github.com/ehrlich-b/droidweekly/internal/repository"
	"github.com/ehrlich-b/droidweekly/internal/store"
)

// WatchStatus is the part of the refresh loop /status reports on.
type WatchStatus interface {
	Last() int
}

type Server struct {
	repo    *repository.Repository
	store   *store.Store
	secret  []byte
	started time.Time

	// Watch is optional.
	Watch WatchStatus
}

// New creates an API server. A non-empty secret turns on bearer auth.
func New(repo *repository.Repository, s *store.Store, secret []byte) *Server {
	return &Server{repo: repo, store: s, secret: secret, started: time.Now()}
}

// Handler returns the routed API, behind auth when a secret is set.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	if len(s.secret) == 0 {
		return mux
	}
	return s.requireToken(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /issues/latest", s.handleLatest)
	mux.HandleFunc("GET /issues/{id}", s.handleIssue)
	mux.HandleFunc("GET /issues", s.handleListIssues)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /events", s.handleEvents)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	slog.Info("api listening", "addr", ln.Addr().String(), "auth", len(s.secret) > 0)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Response types

type refsResponse struct {
	Issues []issue.Ref `json:"issues"`
	Latest int         `json:"latest"`
}

type searchResponse struct {
	Query    string          `json:"query"`
	Articles []issue.Article `json:"articles"`
}

type loadResponse struct {
	LoadID    string  `json:"load_id"`
	Timestamp string  `json:"timestamp"`
	URL       string  `json:"url"`
	IssueID   int     `json:"issue_id"`
	Source    string  `json:"source"`
	Detail    *string `json:"detail,omitempty"`
}

type statusResponse struct {
	Latest       int            `json:"latest"`
	CachedIssues int            `json:"cached_issues"`
	WatchLast    *int           `json:"watch_last,omitempty"`
	StartedAt    string         `json:"started_at"`
	Uptime       string         `json:"uptime"`
	RecentLoads  []loadResponse `json:"recent_loads"`
}

// Handlers

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	res, err := s.repo.LoadLatest(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid issue number")
		return
	}
	var res *repository.Result
	if r.URL.Query().Get("cached") != "" {
		res, err = s.repo.Cached(id)
	} else {
		res, err = s.repo.LoadIssueID(r.Context(), id)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	refs, err := s.repo.Refs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	latest, err := s.repo.LatestID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if refs == nil {
		refs = []issue.Ref{}
	}
	writeJSON(w, http.StatusOK, refsResponse{Issues: refs, Latest: latest})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	arts, err := s.repo.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if arts == nil {
		arts = []issue.Article{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Articles: arts})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := s.repo.LatestID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ids, err := s.store.CachedIssueIDs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	loads, err := s.store.ListRecentLoads(10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statusResponse{
		Latest:       latest,
		CachedIssues: len(ids),
		StartedAt:    s.started.UTC().Format(time.RFC3339),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		RecentLoads:  make([]loadResponse, 0, len(loads)),
	}
	if s.Watch != nil {
		last := s.Watch.Last()
		resp.WatchLast = &last
	}
	for _, l := range loads {
		resp.RecentLoads = append(resp.RecentLoads, loadResponse{
			LoadID:    l.LoadID,
			Timestamp: l.Timestamp.UTC().Format(time.RFC3339),
			URL:       l.URL,
			IssueID:   l.IssueID,
			Source:    l.Source,
			Detail:    l.Detail,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps pipeline errors to HTTP codes: nothing cached is 404, an
// upstream fetch or parse failure is 502.
func statusFor(err error) int {
	var pe *parse.ParseError
	var se *fetch.StatusError
	switch {
	case errors.Is(err, repository.ErrNotCached):
		return http.StatusNotFound
	case errors.As(err, &se) && se.Code == http.StatusNotFound:
		return http.StatusNotFound
	case errors.As(err, &pe), errors.As(err, &se):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
