package modules

import (
	"context"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/webaudit/webaudit/core"
	"github.com/webaudit/webaudit/utils"
)

// SEO passively audits crawled documents for basic search visibility
// problems: missing titles, descriptions and heading structure.
type SEO struct{}

func NewSEO() *SEO {
	return &SEO{}
}

func (m *SEO) Name() string                       { return "seo" }
func (m *SEO) Category() string                   { return "seo" }
func (m *SEO) Initialize(cfg *utils.Config) error { return nil }

func (m *SEO) Run(ctx context.Context, tc *core.TestContext) (*core.ModuleResult, error) {
	result := &core.ModuleResult{
		Module:    m.Name(),
		Category:  m.Category(),
		StartedAt: time.Now(),
	}

	for _, page := range tc.Pages {
		if page.Error != "" || len(page.Body) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Findings = append(result.Findings, m.checkPage(page)...)
	}

	result.EndedAt = time.Now()
	return result, nil
}

func (m *SEO) checkPage(page *core.CrawledPage) []core.Finding {
	doc, err := html.Parse(strings.NewReader(string(page.Body)))
	if err != nil {
		return nil
	}

	var title string
	var hasDescription, hasCanonical bool
	h1Count := 0

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				if strings.EqualFold(attrValue(n, "name"), "description") && attrValue(n, "content") != "" {
					hasDescription = true
				}
			case "link":
				if strings.EqualFold(attrValue(n, "rel"), "canonical") {
					hasCanonical = true
				}
			case "h1":
				h1Count++
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	var findings []core.Finding
	report := func(title, description string) {
		findings = append(findings, core.Finding{
			Title:       title,
			Severity:    core.SeverityInfo,
			Description: description,
			Module:      m.Name(),
			Evidence:    map[string]string{"url": page.URL},
		})
	}

	if title == "" {
		report("Missing page title", "The document has no <title> element.")
	} else if len(title) > 70 {
		report("Page title too long", "Titles above 70 characters are truncated in search results.")
	}
	if !hasDescription {
		report("Missing meta description", "The document has no meta description for search snippets.")
	}
	if h1Count == 0 {
		report("Missing top-level heading", "The document has no <h1> element.")
	} else if h1Count > 1 {
		report("Multiple top-level headings", "The document has more than one <h1> element.")
	}
	if !hasCanonical && strings.Contains(page.URL, "?") {
		report("Parameterized page without canonical link", "Parameter variants without a canonical link dilute ranking.")
	}

	return findings
}
