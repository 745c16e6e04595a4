package parse

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

// Markup hooks on androidweekly.net. These follow the site and will drift.
const (
	classPastIssues  = ".past-issues"
	classLatestIssue = ".latest-issue"
	classIssueHeader = ".issue-header"
	classSections    = ".sections"
	classIssue       = ".issue"
	classHeadline    = ".article-headline"
)

// Page is the result of parsing either a homepage or an issue permalink.
type Page struct {
	Articles []issue.Article
	Refs     []issue.Ref
	// LatestID is set only for the homepage shape.
	LatestID int
}

// ParseError reports markup the parser could not make sense of.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return "parse: " + e.Msg
}

// Parse reads a page from r. The homepage shape (".latest-issue") yields
// articles, the latest issue id and the past issue refs. The permalink shape
// (".issue") yields articles only.
func Parse(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	return ParseDocument(doc)
}

// ParseDocument is Parse for an already loaded document.
func ParseDocument(doc *goquery.Document) (*Page, error) {
	page := &Page{Refs: pastIssues(doc)}

	latest := doc.Find(classLatestIssue).First()
	if latest.Length() > 0 {
		if id, label := latestHeader(latest); id > 0 {
			page.LatestID = id
			ref := issue.Ref{Title: "Issue " + label, Path: issue.PathFor(id), ID: id}
			page.Refs = append([]issue.Ref{ref}, page.Refs...)
		}
		sections := latest.Find(classSections).First()
		if sections.Length() == 0 {
			return nil, &ParseError{Msg: "sections not found"}
		}
		page.Articles = articles(sections.Find("table"))
		return page, nil
	}

	current := doc.Find(classIssue).First()
	if current.Length() > 0 {
		page.Articles = articles(current.Find("table"))
		return page, nil
	}

	return nil, &ParseError{Msg: "no issue data found"}
}

func pastIssues(doc *goquery.Document) []issue.Ref {
	var refs []issue.Ref
	group := doc.Find(classPastIssues).First()
	if group.Length() == 0 {
		return nil
	}
	group.Find("ul").First().Find("li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		href, ok := a.Attr("href")
		if !ok || !strings.Contains(href, "issue-") {
			return
		}
		path := issue.NormalizePath(href)
		id, err := issue.IDFromPath(path)
		if err != nil {
			slog.Debug("skip past issue", "href", href, "err", err)
			return
		}
		refs = append(refs, issue.Ref{Title: strings.TrimSpace(a.Text()), Path: path, ID: id})
	})
	return refs
}

// latestHeader reads "#308" from the issue header.
func latestHeader(latest *goquery.Selection) (int, string) {
	header := latest.Find(classIssueHeader).First()
	if header.Length() == 0 {
		return 0, ""
	}
	label := strings.TrimSpace(header.Find(".clearfix").First().Find("span").Text())
	if !strings.HasPrefix(label, "#") {
		return 0, ""
	}
	id, err := strconv.Atoi(label[1:])
	if err != nil {
		slog.Debug("bad issue header", "label", label, "err", err)
		return 0, ""
	}
	return id, label
}

func articles(tables *goquery.Selection) []issue.Article {
	out := make([]issue.Article, 0, tables.Length())
	tables.Each(func(i int, table *goquery.Selection) {
		out = append(out, article(table, i+1))
	})
	return out
}

func article(table *goquery.Selection, pos int) issue.Article {
	a := issue.Article{Position: pos, Kind: issue.KindArticle}

	if img := table.Find("img").First(); img.Length() > 0 {
		a.ImageURL = img.AttrOr("src", "")
		if c, ok := frameColor(img.AttrOr("style", "")); ok {
			a.FrameColor = c
		}
	}

	if headline := table.Find(classHeadline).First(); headline.Length() > 0 {
		a.Title = cleanText(headline.Text())
		a.Link = headline.AttrOr("href", "")
	}

	if p := table.Find("p").First(); p.Length() > 0 {
		a.Description = cleanText(p.Text())
	}

	if h2 := table.Find("h2").First(); h2.Length() > 0 {
		a.Title = cleanText(h2.Text())
		a.Kind = issue.KindSection
	} else if h5 := table.Find("h5").First(); h5.Length() > 0 {
		a.Title = cleanText(h5.Text())
		a.Kind = issue.KindSponsored
	}
	return a
}

// frameColor pulls the hex color following "border" in an inline style.
func frameColor(style string) (uint32, bool) {
	beg := strings.Index(style, "border")
	if beg < 0 {
		return 0, false
	}
	start := strings.IndexByte(style[beg:], '#')
	if start < 0 {
		return 0, false
	}
	start += beg
	end := strings.IndexByte(style[start:], ';')
	if end < 0 {
		return 0, false
	}
	c, err := issue.ParseColor(style[start : start+end])
	if err != nil {
		slog.Debug("bad frame color", "style", style, "err", err)
		return 0, false
	}
	return c, true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
