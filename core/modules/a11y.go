package modules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/webaudit/webaudit/core"
	"github.com/webaudit/webaudit/utils"
)

// Accessibility passively audits crawled documents for common WCAG
// failures that are detectable without rendering.
type Accessibility struct{}

func NewAccessibility() *Accessibility {
	return &Accessibility{}
}

func (m *Accessibility) Name() string                       { return "a11y" }
func (m *Accessibility) Category() string                   { return "accessibility" }
func (m *Accessibility) Initialize(cfg *utils.Config) error { return nil }

func (m *Accessibility) Run(ctx context.Context, tc *core.TestContext) (*core.ModuleResult, error) {
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

func (m *Accessibility) checkPage(page *core.CrawledPage) []core.Finding {
	doc, err := html.Parse(strings.NewReader(string(page.Body)))
	if err != nil {
		return nil
	}

	missingAlt := 0
	unlabeledInputs := 0
	emptyLinks := 0
	hasLang := false
	labeledFor := make(map[string]bool)
	var inputIDs []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				if attrValue(n, "lang") != "" {
					hasLang = true
				}
			case "img":
				if _, ok := findAttr(n, "alt"); !ok {
					missingAlt++
				}
			case "label":
				if forID := attrValue(n, "for"); forID != "" {
					labeledFor[forID] = true
				}
			case "input":
				switch attrValue(n, "type") {
				case "hidden", "submit", "button", "reset", "image":
				default:
					if attrValue(n, "aria-label") == "" && attrValue(n, "title") == "" {
						inputIDs = append(inputIDs, attrValue(n, "id"))
					}
				}
			case "a":
				if attrValue(n, "href") != "" && !hasTextContent(n) && attrValue(n, "aria-label") == "" {
					emptyLinks++
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	for _, id := range inputIDs {
		if id == "" || !labeledFor[id] {
			unlabeledInputs++
		}
	}

	var findings []core.Finding
	report := func(title, description string, count int) {
		findings = append(findings, core.Finding{
			Title:       title,
			Severity:    core.SeverityLow,
			Description: description,
			Module:      m.Name(),
			Evidence: map[string]string{
				"url":   page.URL,
				"count": fmt.Sprintf("%d", count),
			},
		})
	}

	if !hasLang {
		report("Document language not declared", "The <html> element has no lang attribute.", 1)
	}
	if missingAlt > 0 {
		report("Images without alternative text", "Images without alt attributes are invisible to screen readers.", missingAlt)
	}
	if unlabeledInputs > 0 {
		report("Form inputs without labels", "Inputs without an associated label, aria-label or title cannot be announced.", unlabeledInputs)
	}
	if emptyLinks > 0 {
		report("Links without accessible text", "Links with no text content or aria-label announce nothing.", emptyLinks)
	}

	return findings
}

func attrValue(n *html.Node, key string) string {
	v, _ := findAttr(n, key)
	return v
}

func findAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func hasTextContent(n *html.Node) bool {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode && strings.TrimSpace(child.Data) != "" {
			return true
		}
		if hasTextContent(child) {
			return true
		}
	}
	return false
}
