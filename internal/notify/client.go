package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Event names accepted in the events list.
const (
	EventIssue = "issue"
	EventStale = "stale"
	EventError = "error"
)

// Client sends push notifications via ntfy.sh (or a self-hosted ntfy server).
type Client struct {
	url    string // full URL: https://ntfy.sh/{topic}
	token  string // optional bearer token for reserved topics
	events map[string]bool
	http   *http.Client
}

// New creates a new ntfy client. Topic can be a bare topic name (expanded to
// https://ntfy.sh/{topic}) or a full URL (https://ntfy.example.com/mytopic).
// Events is a comma-separated list of event types to send (e.g. "issue,error").
func New(topic, token, events string) *Client {
	url := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		url = "https://ntfy.sh/" + topic
	}
	evMap := make(map[string]bool)
	for _, e := range strings.Split(events, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			evMap[e] = true
		}
	}
	return &Client{url: url, token: token, events: evMap, http: &http.Client{Timeout: 10 * time.Second}}
}

// Enabled reports whether ev is in the client's events list.
func (c *Client) Enabled(ev string) bool {
	return c.events[ev]
}

// NewIssue announces a newly published issue. clickURL opens the issue.
func (c *Client) NewIssue(ctx context.Context, id int, headline, clickURL string) error {
	if !c.events[EventIssue] {
		return nil
	}
	title := fmt.Sprintf("Android Weekly #%d is out", id)
	body := headline
	if body == "" {
		body = "A new issue is available."
	}
	return c.post(ctx, title, body, "default", "newspaper", clickURL)
}

// Stale reports that the site could not be reached and a cached issue was
// served instead.
func (c *Client) Stale(ctx context.Context, id int, cause error) error {
	if !c.events[EventStale] {
		return nil
	}
	title := "Android Weekly unreachable"
	body := fmt.Sprintf("serving cached issue #%d: %v", id, cause)
	return c.post(ctx, title, body, "low", "hourglass", "")
}

// Failed reports a refresh that failed with nothing cached to fall back on.
func (c *Client) Failed(ctx context.Context, cause error) error {
	if !c.events[EventError] {
		return nil
	}
	return c.post(ctx, "Android Weekly refresh failed", cause.Error(), "high", "x", "")
}

// SendTest sends a test notification synchronously and returns any error.
func (c *Client) SendTest(ctx context.Context) error {
	return c.post(ctx, "droidweekly test", "Push notifications are working!", "default", "test_tube", "")
}

func (c *Client) post(ctx context.Context, title, body, priority, tags, clickURL string) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("ntfy: build request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)
	if clickURL != "" {
		req.Header.Set("Click", clickURL)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("ntfy post failed", "err", err)
		return fmt.Errorf("ntfy: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		err = fmt.Errorf("ntfy: HTTP %d", resp.StatusCode)
		slog.Warn("ntfy rejected notification", "status", resp.StatusCode)
		return err
	}
	return nil
}
