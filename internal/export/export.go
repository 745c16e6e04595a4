package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/droidweekly/internal/issue"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, csv or md)", s)
}

// Ext is the file extension for f, with the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// Issue is one exported issue.
type Issue struct {
	ID       int             `json:"id" yaml:"id"`
	Title    string          `json:"title" yaml:"title"`
	URL      string          `json:"url" yaml:"url"`
	Articles []issue.Article `json:"articles" yaml:"-"`
}

// NewIssue builds an Issue for id against the site baseURL.
func NewIssue(id int, baseURL string, articles []issue.Article) Issue {
	return Issue{
		ID:       id,
		Title:    fmt.Sprintf("Issue #%d", id),
		URL:      strings.TrimRight(baseURL, "/") + issue.PathFor(id),
		Articles: articles,
	}
}

func Write(w io.Writer, f Format, iss Issue) error {
	switch f {
	case FormatJSON:
		return JSON(w, iss)
	case FormatCSV:
		return CSV(w, iss)
	case FormatMarkdown:
		return Markdown(w, iss)
	}
	return fmt.Errorf("unknown export format %q", f)
}

func JSON(w io.Writer, iss Issue) error {
	data, err := json.MarshalIndent(iss, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal issue %d: %w", iss.ID, err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

var csvHeader = []string{"issue", "position", "kind", "title", "description", "link", "image_url", "frame_color"}

func CSV(w io.Writer, iss Issue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, a := range iss.Articles {
		color := ""
		if a.FrameColor != 0 {
			color = fmt.Sprintf("#%08X", a.FrameColor)
		}
		row := []string{
			strconv.Itoa(iss.ID),
			strconv.Itoa(a.Position),
			a.Kind,
			a.Title,
			a.Description,
			a.Link,
			a.ImageURL,
			color,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Markdown writes a YAML front-matter block followed by one section per
// article. Section rows become second-level headings.
func Markdown(w io.Writer, iss Issue) error {
	front, err := yaml.Marshal(struct {
		Issue    `yaml:",inline"`
		Articles int `yaml:"articles"`
	}{iss, len(iss.Articles)})
	if err != nil {
		return fmt.Errorf("front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n", iss.Title)

	for _, a := range iss.Articles {
		b.WriteString("\n")
		switch a.Kind {
		case issue.KindSection:
			fmt.Fprintf(&b, "## %s\n", a.Title)
			continue
		case issue.KindSponsored:
			fmt.Fprintf(&b, "### %s (sponsored)\n", linked(a))
		default:
			fmt.Fprintf(&b, "### %s\n", linked(a))
		}
		if a.Description != "" {
			fmt.Fprintf(&b, "\n%s\n", a.Description)
		}
		if a.Body != "" {
			fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(a.Body))
		}
	}

	_, err = io.WriteString(w, b.String())
	return err
}

var (
	linkText   = strings.NewReplacer(`\`, `\\`, "[", `\[`, "]", `\]`)
	linkTarget = strings.NewReplacer("(", "%28", ")", "%29", " ", "%20")
)

func linked(a issue.Article) string {
	if a.Link == "" {
		return a.Title
	}
	return fmt.Sprintf("[%s](%s)", linkText.Replace(a.Title), linkTarget.Replace(a.Link))
}
