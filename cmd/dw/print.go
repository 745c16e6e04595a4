package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ehrlich-b/droidweekly/internal/issue"
	"github.com/ehrlich-b/droidweekly/internal/repository"
	"github.com/ehrlich-b/droidweekly/internal/store"
)

func printResult(w io.Writer, res *repository.Result) {
	if res.IssueID > 0 {
		fmt.Fprintf(w, "Issue #%d", res.IssueID)
	} else {
		fmt.Fprint(w, "Latest issue")
	}
	if res.Source != repository.SourceRemote {
		fmt.Fprintf(w, " (%s)", res.Source)
	}
	fmt.Fprintln(w)
	printArticles(w, res.Articles, false)
}

// printArticles lists articles in issue order. withIssue prefixes each link
// with its issue number, for search results that span issues.
func printArticles(w io.Writer, articles []issue.Article, withIssue bool) {
	n := 0
	for _, a := range articles {
		if a.Kind == issue.KindSection {
			if withIssue {
				continue
			}
			fmt.Fprintf(w, "\n== %s ==\n", a.Title)
			continue
		}
		n++
		prefix := fmt.Sprintf("%3d.", n)
		if withIssue {
			prefix = fmt.Sprintf("#%-4d", a.IssueID)
		}
		title := a.Title
		if a.Kind == issue.KindSponsored {
			title += " [sponsored]"
		}
		fmt.Fprintf(w, "%s %s\n", prefix, title)
		indent := strings.Repeat(" ", len(prefix)+1)
		if a.Description != "" {
			fmt.Fprintf(w, "%s%s\n", indent, a.Description)
		}
		if a.Link != "" {
			fmt.Fprintf(w, "%s%s\n", indent, a.Link)
		}
	}
	if n == 0 {
		fmt.Fprintln(w, "no articles")
	}
}

func printRows(w io.Writer, rows []store.IssueRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no issues known yet, run `dw latest` or `dw sync`")
		return
	}
	for _, r := range rows {
		cached := ""
		if r.FetchedAt != nil {
			cached = "cached " + r.FetchedAt.Local().Format("2006-01-02")
		}
		fmt.Fprintf(w, "#%-5d %-14s %s\n", r.ID, r.Title, cached)
	}
}

func printRefs(w io.Writer, refs []issue.Ref) {
	for _, r := range refs {
		fmt.Fprintf(w, "#%-5d %s\n", r.ID, r.Title)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// issueArg accepts "302", "#302", "issue-302" or "issues/issue-302".
func issueArg(s string) (int, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if id, err := strconv.Atoi(s); err == nil {
		if id <= 0 {
			return 0, fmt.Errorf("invalid issue number %d", id)
		}
		return id, nil
	}
	return issue.IDFromPath(s)
}
