package reader

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
)

// Getter fetches a page body. fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Reader turns a linked article into Markdown text for the search index.
type Reader struct {
	getter    Getter
	converter *md.Converter
	// MaxLen truncates the stored text. Zero means no limit.
	MaxLen int
}

func New(g Getter) *Reader {
	return &Reader{
		getter:    g,
		converter: md.NewConverter("", true, nil),
		MaxLen:    64 << 10,
	}
}

// Read fetches link and returns its main content as Markdown.
func (r *Reader) Read(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("read %q: not an absolute url", link)
	}
	body, err := r.getter.Get(ctx, link)
	if err != nil {
		return "", err
	}
	return r.Extract(body, u)
}

// Extract runs readability over an already fetched page. readability.Parser
// is not safe for concurrent use, so each call builds its own.
func (r *Reader) Extract(page []byte, u *url.URL) (string, error) {
	parser := readability.NewParser()
	article, err := parser.Parse(bytes.NewReader(page), u)
	if err != nil {
		return "", fmt.Errorf("readability %s: %w", u, err)
	}

	text, err := r.converter.ConvertString(article.Content)
	if err != nil || strings.TrimSpace(text) == "" {
		// fall back to plain text
		text = article.TextContent
	}
	text = strings.TrimSpace(text)
	if r.MaxLen > 0 && len(text) > r.MaxLen {
		text = truncate(text, r.MaxLen)
	}
	return text, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && s[n]&0xc0 == 0x80 {
		n--
	}
	return s[:n]
}
