package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

func sample() Issue {
	return NewIssue(302, "https://androidweekly.net/", []issue.Article{
		{Title: "Articles & Tutorials", Kind: issue.KindSection, Position: 1, IssueID: 302},
		{
			Title:       "RxJava Schedulers Explained",
			Description: "Threads, pools, and \"observeOn\", step by step.",
			Link:        "https://example.com/rx",
			FrameColor:  0x80ff5722,
			Kind:        issue.KindArticle,
			Position:    2,
			IssueID:     302,
			Body:        "Schedulers decide where work runs.",
		},
		{Title: "Bitrise", Link: "https://sponsor.example.com/", Kind: issue.KindSponsored, Position: 3, IssueID: 302},
	})
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"json": FormatJSON, "CSV": FormatCSV, "md": FormatMarkdown, "markdown": FormatMarkdown}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
	if FormatMarkdown.Ext() != ".md" {
		t.Errorf("ext = %q", FormatMarkdown.Ext())
	}
}

func TestNewIssue(t *testing.T) {
	iss := sample()
	if iss.URL != "https://androidweekly.net/issues/issue-302" {
		t.Errorf("url = %q", iss.URL)
	}
	if iss.Title != "Issue #302" {
		t.Errorf("title = %q", iss.Title)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"id\": 302") {
		t.Errorf("expected indented output:\n%s", buf.String())
	}
	var got Issue
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Articles) != 3 || got.Articles[1].FrameColor != 0x80ff5722 {
		t.Errorf("articles = %+v", got.Articles)
	}
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "issue" || rows[0][3] != "title" {
		t.Errorf("header = %v", rows[0])
	}
	rx := rows[2]
	if rx[3] != "RxJava Schedulers Explained" || rx[4] != "Threads, pools, and \"observeOn\", step by step." {
		t.Errorf("row = %v", rx)
	}
	if rx[7] != "#80FF5722" {
		t.Errorf("color = %q", rx[7])
	}
	if rows[1][7] != "" {
		t.Errorf("section color = %q, want empty", rows[1][7])
	}
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatMarkdown, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "---\nid: 302\n") {
		t.Errorf("front matter missing:\n%s", out)
	}
	for _, want := range []string{
		"url: https://androidweekly.net/issues/issue-302\n",
		"articles: 3\n---\n",
		"## Articles & Tutorials\n",
		"### [RxJava Schedulers Explained](https://example.com/rx)\n",
		"Schedulers decide where work runs.",
		"### [Bitrise](https://sponsor.example.com/) (sponsored)\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestMarkdownEscapesLinks(t *testing.T) {
	iss := NewIssue(7, "https://androidweekly.net/", []issue.Article{{
		Title: "Arrays [] and \\ in Kotlin",
		Link:  "https://en.wikipedia.org/wiki/Kotlin_(programming language)",
		Kind:  issue.KindArticle,
	}})
	var buf bytes.Buffer
	if err := Write(&buf, FormatMarkdown, iss); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := `### [Arrays \[\] and \\ in Kotlin](https://en.wikipedia.org/wiki/Kotlin_%28programming%20language%29)` + "\n"
	if !strings.Contains(buf.String(), want) {
		t.Errorf("missing %q in:\n%s", want, buf.String())
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, Format("xml"), sample()); err == nil {
		t.Fatal("expected error")
	}
}
