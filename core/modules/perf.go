package modules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/webaudit/webaudit/core"
	"github.com/webaudit/webaudit/utils"
)

// Performance passively audits fetch timing, payload weight and caching
// headers on crawled pages.
type Performance struct {
	slowPage  time.Duration
	heavyPage int
}

func NewPerformance() *Performance {
	return &Performance{}
}

func (m *Performance) Name() string     { return "perf" }
func (m *Performance) Category() string { return "performance" }

func (m *Performance) Initialize(cfg *utils.Config) error {
	m.slowPage = 2 * time.Second
	m.heavyPage = 1 << 20
	return nil
}

func (m *Performance) Run(ctx context.Context, tc *core.TestContext) (*core.ModuleResult, error) {
	result := &core.ModuleResult{
		Module:    m.Name(),
		Category:  m.Category(),
		StartedAt: time.Now(),
	}

	for _, page := range tc.Pages {
		if page.Error != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if page.FetchTime > m.slowPage {
			result.Findings = append(result.Findings, core.Finding{
				Title:       "Slow page response",
				Severity:    core.SeverityLow,
				Description: fmt.Sprintf("The page took %s to respond, above the %s budget.", page.FetchTime.Round(time.Millisecond), m.slowPage),
				Module:      m.Name(),
				Evidence: map[string]string{
					"url":        page.URL,
					"fetch_time": page.FetchTime.String(),
				},
			})
		}

		if len(page.Body) > m.heavyPage {
			result.Findings = append(result.Findings, core.Finding{
				Title:       "Oversized page payload",
				Severity:    core.SeverityLow,
				Description: fmt.Sprintf("The document weighs %d bytes before subresources.", len(page.Body)),
				Module:      m.Name(),
				Evidence: map[string]string{
					"url":   page.URL,
					"bytes": fmt.Sprintf("%d", len(page.Body)),
				},
			})
		}

		if page.Headers != nil {
			encoding := page.Headers.Get("Content-Encoding")
			if encoding == "" && len(page.Body) > 16<<10 {
				result.Findings = append(result.Findings, core.Finding{
					Title:       "Response served without compression",
					Severity:    core.SeverityInfo,
					Description: "Text responses above a few kilobytes should be gzip or brotli compressed.",
					Module:      m.Name(),
					Evidence:    map[string]string{"url": page.URL},
				})
			}
			cacheControl := page.Headers.Get("Cache-Control")
			if cacheControl == "" || strings.Contains(cacheControl, "no-store") {
				result.Findings = append(result.Findings, core.Finding{
					Title:       "Response not cacheable",
					Severity:    core.SeverityInfo,
					Description: "Pages without caching directives force full refetches on every visit.",
					Module:      m.Name(),
					Evidence:    map[string]string{"url": page.URL, "cache_control": cacheControl},
				})
			}
		}
	}

	result.EndedAt = time.Now()
	return result, nil
}
